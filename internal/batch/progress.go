package batch

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"

	"github.com/marcohefti/negobatch/internal/store"
)

const (
	EventSessionStart  = "session_start"
	EventEngineExit    = "engine_exit"
	EventReportWritten = "report_written"
	EventPublished     = "published"
	EventBatchDone     = "batch_done"
	EventBatchFailed   = "batch_failed"
)

type ProgressEvent struct {
	V       int            `json:"v"`
	TS      string         `json:"ts"`
	Kind    string         `json:"kind"`
	RunID   string         `json:"runId,omitempty"`
	Session *int           `json:"session,omitempty"`
	Mode    string         `json:"mode,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ProgressEmitter appends events to a JSONL file, or writes them to w when
// the path is "-". A nil emitter drops events.
type ProgressEmitter struct {
	mu   sync.Mutex
	path string
	w    io.Writer
}

func NewProgressEmitter(path string, w io.Writer) *ProgressEmitter {
	path = filepath.Clean(path)
	if path == "." || path == "" {
		return nil
	}
	return &ProgressEmitter{path: path, w: w}
}

func (e *ProgressEmitter) Path() string {
	if e == nil {
		return ""
	}
	return e.path
}

func (e *ProgressEmitter) Emit(ev ProgressEvent) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	ev.V = 1
	if e.path != "-" {
		return store.AppendJSONL(e.path, ev)
	}
	if e.w == nil {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return err
	}
	_, err := e.w.Write(buf.Bytes())
	return err
}
