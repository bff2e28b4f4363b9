// Package pin protects batch runs from retention cleanup.
package pin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcohefti/negobatch/internal/batch"
	"github.com/marcohefti/negobatch/internal/ids"
	"github.com/marcohefti/negobatch/internal/store"
)

type Result struct {
	OK     bool   `json:"ok"`
	RunID  string `json:"runId"`
	Pinned bool   `json:"pinned"`
	Path   string `json:"path"`
}

type Opts struct {
	OutRoot string
	RunID   string
	Pinned  bool
}

func Set(opts Opts) (Result, error) {
	outRoot := strings.TrimSpace(opts.OutRoot)
	if outRoot == "" {
		outRoot = ".negobatch"
	}
	runID := strings.TrimSpace(opts.RunID)
	if !ids.IsValidRunID(runID) {
		return Result{}, fmt.Errorf("invalid --run-id (expected format YYYYMMDD-HHMMSSZ-<hex6>)")
	}

	runsDir := filepath.Join(outRoot, "runs")
	runDir := filepath.Join(runsDir, runID)
	if _, err := os.Stat(filepath.Join(runDir, "summary.json")); err != nil {
		if os.IsNotExist(err) {
			return Result{}, fmt.Errorf("missing summary.json for runId=%s", runID)
		}
		return Result{}, err
	}

	// Containment guard against symlink traversal.
	runsEval, err := filepath.EvalSymlinks(runsDir)
	if err != nil {
		return Result{}, err
	}
	runEval, err := filepath.EvalSymlinks(runDir)
	if err != nil {
		return Result{}, err
	}
	runsEval = filepath.Clean(runsEval)
	runEval = filepath.Clean(runEval)
	sep := string(os.PathSeparator)
	if !strings.HasPrefix(runEval, runsEval+sep) && runEval != runsEval {
		return Result{}, fmt.Errorf("run directory escapes outRoot (symlink traversal)")
	}

	sum, err := batch.ReadSummary(runDir)
	if err != nil {
		return Result{}, fmt.Errorf("invalid summary.json: %w", err)
	}
	if sum.RunID != runID {
		return Result{}, fmt.Errorf("summary.json mismatch: expected runId=%s", runID)
	}

	sum.Pinned = opts.Pinned
	if err := store.WriteJSONAtomic(sum.Path, sum); err != nil {
		return Result{}, err
	}
	return Result{OK: true, RunID: runID, Pinned: sum.Pinned, Path: sum.Path}, nil
}
