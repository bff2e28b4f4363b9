package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/marcohefti/negobatch/internal/store"
)

// Engine runs one session request to completion. Implementations block until
// the engine has exited.
type Engine interface {
	Execute(ctx context.Context, req Request) (Execution, error)
}

type Execution struct {
	ResultPath string `json:"resultPath"`
	ExitCode   int    `json:"exitCode"`
	DurationMs int64  `json:"durationMs"`

	ErrPreview   string `json:"errPreview,omitempty"`
	ErrTruncated bool   `json:"errTruncated,omitempty"`
}

// SpawnError means the engine process never started.
type SpawnError struct {
	Argv []string
	Err  error
}

func (e *SpawnError) Error() string {
	name := ""
	if len(e.Argv) > 0 {
		name = e.Argv[0]
	}
	return fmt.Sprintf("start engine %q: %v", name, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

const DefaultMaxPreviewBytes = 4096

// ProcessEngine exchanges files with an engine process: the request is
// written to Dir/RequestFile, the engine writes Dir/ResultFile.
type ProcessEngine struct {
	Command     []string
	Dir         string
	RequestFile string
	ResultFile  string

	// Engine output is forwarded here; nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	MaxPreviewBytes int
}

func (p ProcessEngine) Execute(ctx context.Context, req Request) (Execution, error) {
	if len(p.Command) == 0 {
		return Execution{}, errors.New("missing engine command argv")
	}
	reqPath := filepath.Join(p.Dir, p.RequestFile)
	resPath := filepath.Join(p.Dir, p.ResultFile)

	b, err := store.EncodeJSONIndent(req)
	if err != nil {
		return Execution{}, err
	}
	if err := store.WriteFileAtomic(reqPath, b); err != nil {
		return Execution{}, fmt.Errorf("write engine request: %w", err)
	}
	// A result left over from an earlier session must not pass for this one.
	if err := os.Remove(resPath); err != nil && !os.IsNotExist(err) {
		return Execution{}, fmt.Errorf("remove stale engine result: %w", err)
	}

	maxPreview := p.MaxPreviewBytes
	if maxPreview <= 0 {
		maxPreview = DefaultMaxPreviewBytes
	}
	stdout := p.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := p.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	cmd := exec.CommandContext(ctx, p.Command[0], p.Command[1:]...)
	cmd.Dir = p.Dir
	cmd.Stdout = stdout
	errCap := &boundedCapture{max: maxPreview}
	cmd.Stderr = io.MultiWriter(stderr, errCap)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Execution{}, &SpawnError{Argv: p.Command, Err: err}
	}
	waitErr := cmd.Wait()

	exitCode := 0
	if waitErr != nil {
		var ee *exec.ExitError
		if !errors.As(waitErr, &ee) {
			return Execution{}, waitErr
		}
		exitCode = ee.ExitCode()
	}
	preview, truncated := errCap.snapshot()
	return Execution{
		ResultPath:   resPath,
		ExitCode:     exitCode,
		DurationMs:   time.Since(start).Milliseconds(),
		ErrPreview:   preview,
		ErrTruncated: truncated,
	}, nil
}

// boundedCapture keeps the first max bytes written to it and counts the rest.
type boundedCapture struct {
	max int
	mu  sync.Mutex
	buf bytes.Buffer

	truncated bool
}

func (c *boundedCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	remaining := c.max - c.buf.Len()
	if remaining <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > remaining {
		_, _ = c.buf.Write(p[:remaining])
		c.truncated = true
		return len(p), nil
	}
	_, _ = c.buf.Write(p)
	return len(p), nil
}

func (c *boundedCapture) snapshot() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String(), c.truncated
}
