// Package report post-processes engine result traces into per-session reports.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/marcohefti/negobatch/internal/codes"
	"github.com/marcohefti/negobatch/internal/ids"
	"github.com/marcohefti/negobatch/internal/settings"
	"github.com/marcohefti/negobatch/internal/store"
	"github.com/marcohefti/negobatch/internal/utility"
)

// ReportPerm makes reports world readable and writable.
const ReportPerm os.FileMode = 0o666

type Error struct {
	Code    string
	Message string
	Path    string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ProfileLoader returns the profile behind a reference from the engine's
// partyprofiles mapping.
type ProfileLoader func(ref string) (utility.Profile, error)

// CachedLoader loads each profile reference once per batch.
func CachedLoader(baseDir string) ProfileLoader {
	cache := map[string]utility.Profile{}
	return func(ref string) (utility.Profile, error) {
		if p, ok := cache[ref]; ok {
			return p, nil
		}
		p, err := utility.Load(ref, baseDir)
		if err != nil {
			return utility.Profile{}, err
		}
		cache[ref] = p
		return p, nil
	}
}

type PostProcessor struct {
	ResultsDir string
	Profiles   ProfileLoader
}

type Report struct {
	Index         int           `json:"index"`
	Mode          settings.Mode `json:"mode"`
	Path          string        `json:"path"`
	ScoredActions int           `json:"scoredActions"`
}

// Process reads the engine result, adds utilities for negotiation sessions,
// and writes the report for the session at index (0-based).
func (pp PostProcessor) Process(index int, mode settings.Mode, resultPath string) (Report, error) {
	var result map[string]any
	if err := store.ReadJSON(resultPath, &result); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Report{}, &Error{Code: codes.ResultMissing, Message: "engine produced no result file", Path: resultPath}
		}
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return Report{}, &Error{Code: codes.IO, Message: "read engine result", Path: resultPath, Err: err}
		}
		return Report{}, &Error{Code: codes.ResultInvalid, Message: "engine result is not valid json", Path: resultPath, Err: err}
	}
	if result == nil {
		return Report{}, &Error{Code: codes.ResultInvalid, Message: "engine result is not a json object", Path: resultPath}
	}

	rep := Report{Index: index, Mode: mode}
	if mode == settings.ModeNegotiation {
		loader := pp.Profiles
		if loader == nil {
			loader = CachedLoader("")
		}
		n, err := AddUtilities(result, loader)
		if err != nil {
			return Report{}, err
		}
		rep.ScoredActions = n
	}

	rep.Path = filepath.Join(pp.ResultsDir, ids.ReportFileName(index, string(mode)))
	if err := store.WriteJSONAtomicPerm(rep.Path, result, ReportPerm); err != nil {
		return Report{}, &Error{Code: codes.IO, Message: "write report", Path: rep.Path, Err: err}
	}
	return rep, nil
}

// AddUtilities attaches, to every offer and accept in a SAOPState trace, the
// utility of its bid for each participant. It returns the number of actions
// scored. Other actions are left as they are.
func AddUtilities(result map[string]any, load ProfileLoader) (int, error) {
	state, ok := result["SAOPState"].(map[string]any)
	if !ok {
		return 0, &Error{Code: codes.ResultInvalid, Message: "negotiation result has no SAOPState object"}
	}
	actions, _ := state["actions"].([]any)
	if len(actions) == 0 {
		return 0, nil
	}

	partyProfiles, ok := state["partyprofiles"].(map[string]any)
	if !ok || len(partyProfiles) == 0 {
		return 0, &Error{Code: codes.ResultInvalid, Message: "negotiation result has actions but no partyprofiles"}
	}
	participants := make([]string, 0, len(partyProfiles))
	for id := range partyProfiles {
		participants = append(participants, id)
	}
	sort.Strings(participants)

	profiles := make(map[string]utility.Profile, len(participants))
	for _, id := range participants {
		entry, _ := partyProfiles[id].(map[string]any)
		ref, _ := entry["profile"].(string)
		p, err := load(ref)
		if err != nil {
			return 0, &Error{Code: codes.ProfileInvalid, Message: fmt.Sprintf("load profile of %s", id), Err: err}
		}
		profiles[id] = p
	}

	scored := 0
	for i, raw := range actions {
		action, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		offer, ok := action["offer"].(map[string]any)
		if !ok {
			offer, ok = action["accept"].(map[string]any)
		}
		if !ok {
			continue
		}
		bidObj, _ := offer["bid"].(map[string]any)
		issueValues, ok := bidObj["issuevalues"].(map[string]any)
		if !ok {
			return scored, &Error{Code: codes.ResultInvalid, Message: fmt.Sprintf("action %d has no bid.issuevalues", i)}
		}
		bid, err := utility.BidFromIssueValues(issueValues)
		if err != nil {
			return scored, &Error{Code: codes.Score, Message: fmt.Sprintf("action %d", i), Err: err}
		}
		utilities := make(map[string]any, len(participants))
		for _, id := range participants {
			u, err := utility.ScoreBid(profiles[id], bid)
			if err != nil {
				return scored, &Error{Code: codes.Score, Message: fmt.Sprintf("action %d for %s", i, id), Err: err}
			}
			utilities[id] = u
		}
		offer["utilities"] = utilities
		scored++
	}
	return scored, nil
}

// ReadReport loads a written report, keeping numbers as json.Number.
func ReadReport(path string) (map[string]any, error) {
	var out map[string]any
	if err := store.ReadJSON(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}
