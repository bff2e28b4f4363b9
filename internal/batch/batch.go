// Package batch runs a validated negotiation batch session by session.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/marcohefti/negobatch/internal/agents"
	"github.com/marcohefti/negobatch/internal/anonymize"
	"github.com/marcohefti/negobatch/internal/codes"
	"github.com/marcohefti/negobatch/internal/engine"
	"github.com/marcohefti/negobatch/internal/ids"
	"github.com/marcohefti/negobatch/internal/publish"
	"github.com/marcohefti/negobatch/internal/redact"
	"github.com/marcohefti/negobatch/internal/report"
	"github.com/marcohefti/negobatch/internal/settings"
	"github.com/marcohefti/negobatch/internal/store"
)

const (
	SummarySchemaV1 = 1

	StatusOK      = "ok"
	StatusInvalid = "invalid"
	StatusAborted = "aborted"

	DefaultLockWait = 2 * time.Second
)

// SessionError aborts the batch at the session that failed.
type SessionError struct {
	Index    int
	Mode     settings.Mode
	Code     string
	ExitCode int
	Err      error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %d (%s): %v", e.Index+1, e.Mode, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// RestoreError means some anonymized artifacts stayed in the scratch dir.
type RestoreError struct {
	ScratchDir string
	Err        error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore artifacts from %s: %v", e.ScratchDir, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }

type Runner struct {
	SettingsPath string
	PartiesDir   string
	ProfilesDir  string
	ResultsDir   string
	OutRoot      string
	ScratchDir   string
	RestoreRoot  string
	// ProfileBaseDir resolves relative profile references found in engine
	// results; it is the engine's working directory.
	ProfileBaseDir string

	Engine    engine.Engine
	Publisher publish.Publisher
	// Secrets are scrubbed from engine stderr before it reaches logs or
	// the summary.
	Secrets []string
	Logger  *slog.Logger
	// Progress defaults to <outRoot>/runs/<runId>/progress.jsonl.
	Progress *ProgressEmitter

	LockWait time.Duration
	Now      func() time.Time
}

type SessionSummary struct {
	Index         int           `json:"index"`
	Mode          settings.Mode `json:"mode"`
	Report        string        `json:"report,omitempty"`
	ExitCode      int           `json:"exitCode"`
	DurationMs    int64         `json:"durationMs"`
	ScoredActions int           `json:"scoredActions"`
	Object        string        `json:"object,omitempty"`
}

type Summary struct {
	SchemaVersion int              `json:"schemaVersion"`
	RunID         string           `json:"runId"`
	SettingsPath  string           `json:"settingsPath"`
	Status        string           `json:"status"`
	StartedAt     string           `json:"startedAt"`
	FinishedAt    string           `json:"finishedAt"`
	Sessions      []SessionSummary `json:"sessions"`
	FailedSession *int             `json:"failedSession,omitempty"`
	ErrorCode     string           `json:"errorCode,omitempty"`
	Error         string           `json:"error,omitempty"`
	Restored      int              `json:"restored"`
	Skipped       int              `json:"skipped"`
	// Pinned runs are never removed by retention cleanup.
	Pinned bool `json:"pinned,omitempty"`
	// Path is where this summary was written.
	Path string `json:"-"`
}

// ReadSummary loads <runDir>/summary.json.
func ReadSummary(runDir string) (Summary, error) {
	var sum Summary
	path := filepath.Join(runDir, "summary.json")
	if err := store.ReadJSON(path, &sum); err != nil {
		return Summary{}, err
	}
	if sum.SchemaVersion != SummarySchemaV1 {
		return Summary{}, fmt.Errorf("unsupported summary.json schemaVersion=%d", sum.SchemaVersion)
	}
	sum.Path = path
	return sum, nil
}

// Load scans agents, discovers profiles and validates the settings file.
// No session runs when it fails.
// Load compiles the batch for an engine started in workdir ("" is the
// current directory).
func Load(settingsPath, partiesDir, profilesDir, workdir string, anon *anonymize.Map) (settings.Batch, *agents.Table, error) {
	table, err := agents.Scan(partiesDir)
	if err != nil {
		return settings.Batch{}, nil, fmt.Errorf("scan agents: %w", err)
	}
	profiles, err := settings.DiscoverProfiles(profilesDir)
	if err != nil {
		return settings.Batch{}, nil, fmt.Errorf("discover profiles: %w", err)
	}
	b, err := settings.Compile(settingsPath, &settings.Validator{
		Parties:          table,
		Profiles:         profiles,
		Anonymizer:       anon,
		AbsoluteProfiles: settings.EngineRunsElsewhere(workdir),
	})
	if err != nil {
		return settings.Batch{}, nil, err
	}
	return b, table, nil
}

// Run holds the batch lock for the whole batch. The summary is written even
// when the batch is invalid or aborted; the returned error says why.
func (r Runner) Run(ctx context.Context) (Summary, error) {
	if r.Engine == nil {
		return Summary{}, errors.New("batch: missing engine")
	}
	if r.Now == nil {
		r.Now = time.Now
	}
	if r.Logger == nil {
		r.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.Publisher == nil {
		r.Publisher = publish.Nop{}
	}
	if r.LockWait <= 0 {
		r.LockWait = DefaultLockWait
	}

	runID, err := ids.NewRunID(r.Now())
	if err != nil {
		return Summary{}, err
	}
	runDir := filepath.Join(r.OutRoot, "runs", runID)
	if r.Progress == nil {
		r.Progress = NewProgressEmitter(filepath.Join(runDir, "progress.jsonl"), nil)
	}
	sum := Summary{
		SchemaVersion: SummarySchemaV1,
		RunID:         runID,
		SettingsPath:  r.SettingsPath,
		StartedAt:     r.Now().UTC().Format(time.RFC3339Nano),
		Sessions:      []SessionSummary{},
		Path:          filepath.Join(runDir, "summary.json"),
	}
	log := r.Logger.With("runId", runID)

	var runErr error
	lockErr := store.WithDirLock(filepath.Join(r.OutRoot, "batch.lock"), r.LockWait, func() error {
		runErr = r.runLocked(ctx, log, &sum)
		return nil
	})
	if lockErr != nil {
		return Summary{}, lockErr
	}

	sum.FinishedAt = r.Now().UTC().Format(time.RFC3339Nano)
	kind := EventBatchDone
	if runErr != nil {
		kind = EventBatchFailed
		sum.Error = runErr.Error()
		sum.ErrorCode = CodeOf(runErr)
	}
	r.emit(log, ProgressEvent{Kind: kind, RunID: runID, Details: map[string]any{
		"status":   sum.Status,
		"sessions": len(sum.Sessions),
		"restored": sum.Restored,
	}})
	if err := store.WriteJSONAtomic(sum.Path, sum); err != nil {
		return sum, errors.Join(runErr, fmt.Errorf("write summary: %w", err))
	}
	return sum, runErr
}

func (r Runner) runLocked(ctx context.Context, log *slog.Logger, sum *Summary) (err error) {
	anon := anonymize.NewMap()
	b, _, err := Load(r.SettingsPath, r.PartiesDir, r.ProfilesDir, r.ProfileBaseDir, anon)
	if err != nil {
		sum.Status = StatusInvalid
		return err
	}
	log.Info("batch compiled", "sessions", len(b.Sessions), "tokens", anon.Len())

	defer func() {
		res, restoreErr := anon.Restore(r.ScratchDir, r.RestoreRoot)
		sum.Restored = len(res.Restored)
		sum.Skipped = res.Skipped
		if restoreErr != nil {
			log.Error("restore failed", "scratchDir", r.ScratchDir, "err", restoreErr)
			err = errors.Join(err, &RestoreError{ScratchDir: r.ScratchDir, Err: restoreErr})
			return
		}
		if len(res.Restored) > 0 {
			log.Info("artifacts restored", "count", len(res.Restored))
		}
	}()

	pp := report.PostProcessor{
		ResultsDir: r.ResultsDir,
		Profiles:   report.CachedLoader(r.ProfileBaseDir),
	}
	requests := engine.BuildAll(b)
	for i, s := range b.Sessions {
		ss, err := r.runSession(ctx, log, pp, sum.RunID, s, requests[i])
		if ss != nil {
			sum.Sessions = append(sum.Sessions, *ss)
		}
		if err != nil {
			sum.Status = StatusAborted
			failed := s.Index
			sum.FailedSession = &failed
			return err
		}
	}
	sum.Status = StatusOK
	return nil
}

func (r Runner) runSession(ctx context.Context, log *slog.Logger, pp report.PostProcessor, runID string, s settings.Session, req engine.Request) (*SessionSummary, error) {
	idx := s.Index
	log = log.With("session", idx+1, "mode", string(s.Mode))
	fail := func(code string, exitCode int, err error) error {
		log.Error("session failed", "code", code, "err", err)
		return &SessionError{Index: idx, Mode: s.Mode, Code: code, ExitCode: exitCode, Err: err}
	}

	r.emit(log, ProgressEvent{Kind: EventSessionStart, RunID: runID, Session: &idx, Mode: string(s.Mode), Details: map[string]any{
		"parties":         len(s.Parties),
		"deadlineSeconds": s.DeadlineSeconds,
	}})
	log.Info("session start", "parties", len(s.Parties), "deadlineSeconds", s.DeadlineSeconds)

	exec, err := r.Engine.Execute(ctx, req)
	if err != nil {
		var spawn *engine.SpawnError
		if errors.As(err, &spawn) {
			return nil, fail(codes.EngineSpawn, 0, err)
		}
		return nil, fail(codes.IO, 0, err)
	}
	ss := &SessionSummary{Index: idx, Mode: s.Mode, ExitCode: exec.ExitCode, DurationMs: exec.DurationMs}
	r.emit(log, ProgressEvent{Kind: EventEngineExit, RunID: runID, Session: &idx, Mode: string(s.Mode), Details: map[string]any{
		"exitCode":   exec.ExitCode,
		"durationMs": exec.DurationMs,
	}})
	if exec.ExitCode != 0 {
		msg := fmt.Errorf("engine exited with code %d", exec.ExitCode)
		if exec.ErrPreview != "" {
			preview, applied := redact.Text(exec.ErrPreview, r.Secrets...)
			if len(applied.Names) > 0 {
				log.Warn("redacted engine stderr", "session", idx, "rules", applied.Names)
			}
			msg = fmt.Errorf("engine exited with code %d: %s", exec.ExitCode, preview)
		}
		return ss, fail(codes.EngineExitCode(exec.ExitCode), exec.ExitCode, msg)
	}

	rep, err := pp.Process(idx, s.Mode, exec.ResultPath)
	if err != nil {
		var re *report.Error
		if errors.As(err, &re) {
			return ss, fail(re.Code, 0, err)
		}
		return ss, fail(codes.IO, 0, err)
	}
	ss.Report = rep.Path
	ss.ScoredActions = rep.ScoredActions
	r.emit(log, ProgressEvent{Kind: EventReportWritten, RunID: runID, Session: &idx, Mode: string(s.Mode), Details: map[string]any{
		"path":          rep.Path,
		"scoredActions": rep.ScoredActions,
	}})

	obj, err := r.Publisher.Publish(ctx, runID, rep.Path)
	if err != nil {
		return ss, fail(codes.Publish, 0, err)
	}
	if obj != (publish.Object{}) {
		ss.Object = obj.String()
		r.emit(log, ProgressEvent{Kind: EventPublished, RunID: runID, Session: &idx, Mode: string(s.Mode), Details: map[string]any{
			"object": ss.Object,
		}})
	}
	log.Info("session done", "report", rep.Path, "durationMs", exec.DurationMs)
	return ss, nil
}

// Progress failures are logged, not returned.
func (r Runner) emit(log *slog.Logger, ev ProgressEvent) {
	ev.TS = r.Now().UTC().Format(time.RFC3339Nano)
	if err := r.Progress.Emit(ev); err != nil {
		log.Warn("progress emit failed", "kind", ev.Kind, "err", err)
	}
}

// CodeOf maps a batch error to its stable code.
func CodeOf(err error) string {
	var (
		se  *SessionError
		ve  *settings.ValidationError
		de  *agents.DuplicateError
		me  *agents.ManifestError
		re  *RestoreError
		lte *store.LockTimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		return se.Code
	case errors.As(err, &ve):
		return codes.SettingsInvalid
	case errors.As(err, &de):
		return codes.DuplicateAgent
	case errors.As(err, &me):
		return codes.AgentManifest
	case errors.As(err, &lte):
		return codes.LockTimeout
	case errors.As(err, &re):
		return codes.Restore
	default:
		return codes.IO
	}
}
