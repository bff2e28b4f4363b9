package report

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/marcohefti/negobatch/internal/codes"
	"github.com/marcohefti/negobatch/internal/settings"
	"github.com/marcohefti/negobatch/internal/utility"
)

const profileA = `{"LinearAdditiveUtilitySpace": {
  "issueWeights": {"price": 2, "speed": 1},
  "issueUtilities": {
    "price": {"discreteutils": {"valueUtilities": {"low": 0.2, "high": 0.9}}},
    "speed": {"discreteutils": {"valueUtilities": {"slow": 0.1, "fast": 1.0}}}
  }}}`

const profileB = `{"LinearAdditiveUtilitySpace": {
  "issueWeights": {"price": 1, "speed": 1},
  "issueUtilities": {
    "price": {"discreteutils": {"valueUtilities": {"low": 1.0, "high": 0.0}}},
    "speed": {"discreteutils": {"valueUtilities": {"slow": 0.5, "fast": 0.5}}}
  }}}`

const negotiationResult = `{"SAOPState": {
  "partyprofiles": {
    "party1": {"party": {"partyref": "classpath:a.A"}, "profile": "file:profiles/a.json"},
    "party2": {"party": {"partyref": "classpath:b.B"}, "profile": "file:profiles/b.json"}
  },
  "actions": [
    {"offer": {"actor": "party1", "bid": {"issuevalues": {"price": "high", "speed": "fast"}}}},
    {"EndNegotiation": {"actor": "party2"}},
    {"accept": {"actor": "party2", "bid": {"issuevalues": {"price": "high", "speed": "fast"}}}}
  ],
  "progress": {"ProgressTime": {"duration": 30000}}
}}`

func writeFixture(t *testing.T, dir, rel, body string) string {
	t.Helper()
	p := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return p
}

func TestProcess_NegotiationAddsUtilitiesPerParticipant(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "profiles/a.json", profileA)
	writeFixture(t, dir, "profiles/b.json", profileB)
	resultPath := writeFixture(t, dir, "results.json", negotiationResult)

	pp := PostProcessor{ResultsDir: filepath.Join(dir, "results"), Profiles: CachedLoader(dir)}
	rep, err := pp.Process(0, settings.ModeNegotiation, resultPath)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if filepath.Base(rep.Path) != "0001_negotiation.json" {
		t.Fatalf("unexpected report name: %s", rep.Path)
	}
	if rep.ScoredActions != 2 {
		t.Fatalf("expected 2 scored actions, got %d", rep.ScoredActions)
	}

	got, err := ReadReport(rep.Path)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	actions := got["SAOPState"].(map[string]any)["actions"].([]any)
	for _, i := range []int{0, 2} {
		action := actions[i].(map[string]any)
		inner, ok := action["offer"].(map[string]any)
		if !ok {
			inner = action["accept"].(map[string]any)
		}
		utils, ok := inner["utilities"].(map[string]any)
		if !ok || len(utils) != 2 {
			t.Fatalf("action %d: expected utilities for both parties, got %#v", i, inner["utilities"])
		}
		u1, _ := utils["party1"].(json.Number).Float64()
		u2, _ := utils["party2"].(json.Number).Float64()
		if math.Abs(u1-(2*0.9+1.0)/3) > 1e-9 || math.Abs(u2-0.25) > 1e-9 {
			t.Fatalf("action %d: unexpected utilities %v %v", i, u1, u2)
		}
	}
	if _, ok := actions[1].(map[string]any)["EndNegotiation"].(map[string]any)["utilities"]; ok {
		t.Fatalf("non-bid action must stay untouched")
	}
	if progress := got["SAOPState"].(map[string]any)["progress"]; progress == nil {
		t.Fatalf("unrelated result fields must be preserved")
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(rep.Path)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		if info.Mode().Perm() != ReportPerm {
			t.Fatalf("expected mode %o, got %o", ReportPerm, info.Mode().Perm())
		}
	}
}

func TestProcess_LearnPassesThrough(t *testing.T) {
	dir := t.TempDir()
	resultPath := writeFixture(t, dir, "results.json", `{"LearnState": {"actions": [{"LearningDone": {"actor": "p1"}}]}}`)
	pp := PostProcessor{ResultsDir: dir}
	rep, err := pp.Process(1, settings.ModeLearn, resultPath)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if filepath.Base(rep.Path) != "0002_learn.json" || rep.ScoredActions != 0 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	got, err := ReadReport(rep.Path)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if _, ok := got["LearnState"]; !ok {
		t.Fatalf("learn result not preserved: %#v", got)
	}
}

func TestProcess_EmptyActionsLoadsNoProfiles(t *testing.T) {
	dir := t.TempDir()
	resultPath := writeFixture(t, dir, "results.json", `{"SAOPState": {"actions": [], "partyprofiles": {"p": {"profile": "file:missing.json"}}}}`)
	pp := PostProcessor{ResultsDir: dir, Profiles: func(string) (utility.Profile, error) {
		t.Fatalf("loader must not be called")
		return utility.Profile{}, nil
	}}
	if _, err := pp.Process(0, settings.ModeNegotiation, resultPath); err != nil {
		t.Fatalf("Process: %v", err)
	}
}

func TestProcess_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "profiles/a.json", profileA)
	writeFixture(t, dir, "profiles/b.json", profileB)
	cases := []struct {
		name   string
		result string
		code   string
	}{
		{"missing", "", codes.ResultMissing},
		{"not json", "{nope", codes.ResultInvalid},
		{"no SAOPState", `{"other": {}}`, codes.ResultInvalid},
		{"out of domain value", `{"SAOPState": {"partyprofiles": {"party1": {"profile": "file:profiles/a.json"}}, "actions": [{"offer": {"bid": {"issuevalues": {"price": "free", "speed": "fast"}}}}]}}`, codes.Score},
		{"missing profile", `{"SAOPState": {"partyprofiles": {"party1": {"profile": "file:profiles/zzz.json"}}, "actions": [{"offer": {"bid": {"issuevalues": {"price": "low", "speed": "fast"}}}}]}}`, codes.ProfileInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resultPath := filepath.Join(t.TempDir(), "results.json")
			if tc.result != "" {
				if err := os.WriteFile(resultPath, []byte(tc.result), 0o644); err != nil {
					t.Fatalf("write: %v", err)
				}
			}
			pp := PostProcessor{ResultsDir: t.TempDir(), Profiles: CachedLoader(dir)}
			_, err := pp.Process(0, settings.ModeNegotiation, resultPath)
			var re *Error
			if !errors.As(err, &re) || re.Code != tc.code {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestCachedLoader_LoadsOnce(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "p.json", profileA)
	load := CachedLoader(dir)
	if _, err := load("file:p.json"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := load("file:p.json"); err != nil {
		t.Fatalf("expected cached profile, got %v", err)
	}
}
