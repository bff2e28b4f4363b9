// Package gc applies retention to batch run metadata under <outRoot>/runs.
// Reports in the results dir are not run metadata and are never touched.
package gc

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/marcohefti/negobatch/internal/batch"
)

type RunInfo struct {
	RunID     string    `json:"runId"`
	Path      string    `json:"path"`
	StartedAt time.Time `json:"startedAt"`
	Status    string    `json:"status"`
	Pinned    bool      `json:"pinned"`
	Bytes     int64     `json:"bytes"`
	// Reason is "age" or "size" for deleted runs.
	Reason string `json:"reason,omitempty"`
}

type Result struct {
	OK          bool      `json:"ok"`
	OutRoot     string    `json:"outRoot"`
	DryRun      bool      `json:"dryRun"`
	Deleted     []RunInfo `json:"deleted,omitempty"`
	Kept        []RunInfo `json:"kept,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
	TotalBefore int64     `json:"totalBeforeBytes"`
	TotalAfter  int64     `json:"totalAfterBytes"`
}

type Opts struct {
	OutRoot       string
	Now           time.Time
	MaxAgeDays    int
	MaxTotalBytes int64
	// KeepLast runs (newest first) survive both limits.
	KeepLast int
	DryRun   bool
}

// Run only considers run dirs with a readable summary.json, so a batch that
// is still running is never touched.
func Run(opts Opts) (Result, error) {
	if opts.OutRoot == "" {
		opts.OutRoot = ".negobatch"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	res := Result{OK: true, OutRoot: opts.OutRoot, DryRun: opts.DryRun}

	runs, err := listRuns(filepath.Join(opts.OutRoot, "runs"))
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return Result{}, err
	}
	for _, r := range runs {
		res.TotalBefore += r.Bytes
	}
	res.TotalAfter = res.TotalBefore

	reasons := plan(runs, opts)
	for _, r := range runs {
		reason, drop := reasons[r.RunID]
		if !drop {
			res.Kept = append(res.Kept, r)
			continue
		}
		r.Reason = reason
		if !opts.DryRun {
			if err := os.RemoveAll(r.Path); err != nil {
				res.OK = false
				res.Errors = append(res.Errors, err.Error())
				res.Kept = append(res.Kept, r)
				continue
			}
		}
		res.Deleted = append(res.Deleted, r)
		res.TotalAfter -= r.Bytes
	}
	return res, nil
}

// listRuns returns runs oldest first.
func listRuns(runsDir string) ([]RunInfo, error) {
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return nil, err
	}
	var runs []RunInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		runDir := filepath.Join(runsDir, e.Name())
		sum, err := batch.ReadSummary(runDir)
		if err != nil {
			continue
		}
		startedAt, err := time.Parse(time.RFC3339Nano, sum.StartedAt)
		if err != nil {
			startedAt = time.Time{}
		}
		size, _ := dirSize(runDir)
		runs = append(runs, RunInfo{
			RunID:     sum.RunID,
			Path:      runDir,
			StartedAt: startedAt,
			Status:    sum.Status,
			Pinned:    sum.Pinned,
			Bytes:     size,
		})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs, nil
}

// plan maps run ids to the reason they are deleted. runs must be oldest first.
func plan(runs []RunInfo, opts Opts) map[string]string {
	out := map[string]string{}
	protected := func(i int) bool {
		return runs[i].Pinned || (opts.KeepLast > 0 && i >= len(runs)-opts.KeepLast)
	}

	var remaining int64
	for _, r := range runs {
		remaining += r.Bytes
	}
	if opts.MaxAgeDays > 0 {
		cutoff := opts.Now.Add(-time.Duration(opts.MaxAgeDays) * 24 * time.Hour)
		for i, r := range runs {
			if protected(i) || r.StartedAt.IsZero() || !r.StartedAt.Before(cutoff) {
				continue
			}
			out[r.RunID] = "age"
			remaining -= r.Bytes
		}
	}
	if opts.MaxTotalBytes > 0 {
		for i, r := range runs {
			if remaining <= opts.MaxTotalBytes {
				break
			}
			if protected(i) || out[r.RunID] != "" {
				continue
			}
			out[r.RunID] = "size"
			remaining -= r.Bytes
		}
	}
	return out
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
