package batch

import (
	"archive/zip"
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marcohefti/negobatch/internal/codes"
	"github.com/marcohefti/negobatch/internal/engine"
	"github.com/marcohefti/negobatch/internal/publish"
	"github.com/marcohefti/negobatch/internal/settings"
	"github.com/marcohefti/negobatch/internal/store"
)

const testProfile = `{"LinearAdditiveUtilitySpace": {
  "issueWeights": {"price": 2, "speed": 1},
  "issueUtilities": {
    "price": {"discreteutils": {"valueUtilities": {"low": 0.2, "high": 0.9}}},
    "speed": {"discreteutils": {"valueUtilities": {"slow": 0.1, "fast": 1.0}}}
  }}}`

type workspace struct {
	root        string
	partiesDir  string
	profilesDir string
	scratchDir  string
	restoreRoot string
	resultsDir  string
	outRoot     string
	settings    string
}

func newWorkspace(t *testing.T) workspace {
	t.Helper()
	root := t.TempDir()
	ws := workspace{
		root:        root,
		partiesDir:  filepath.Join(root, "parties"),
		profilesDir: filepath.Join(root, "profiles"),
		scratchDir:  filepath.Join(root, "scratch"),
		restoreRoot: filepath.Join(root, "restored"),
		resultsDir:  filepath.Join(root, "results"),
		outRoot:     filepath.Join(root, ".negobatch"),
		settings:    filepath.Join(root, "settings.yaml"),
	}
	for _, d := range []string{ws.partiesDir, ws.profilesDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	writeJar(t, filepath.Join(ws.partiesDir, "random.jar"), "geniusweb.exampleparties.randomparty.RandomParty")
	writeJar(t, filepath.Join(ws.partiesDir, "boulware.jar"), "geniusweb.exampleparties.boulware.Boulware")
	for _, name := range []string{"party1.json", "party2.json"} {
		if err := os.WriteFile(filepath.Join(ws.profilesDir, name), []byte(testProfile), 0o644); err != nil {
			t.Fatalf("write profile: %v", err)
		}
	}
	return ws
}

func writeJar(t *testing.T, path string, mainClass string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create jar: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("META-INF/MANIFEST.MF")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := fmt.Fprintf(w, "Manifest-Version: 1.0\r\nMain-Class: %s\r\n\r\n", mainClass); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func (ws workspace) writeSettings(t *testing.T, body string) {
	t.Helper()
	body = strings.ReplaceAll(body, "PROFILES", filepath.ToSlash(ws.profilesDir))
	if err := os.WriteFile(ws.settings, []byte(body), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
}

func (ws workspace) runner(eng engine.Engine) Runner {
	return Runner{
		SettingsPath: ws.settings,
		PartiesDir:   ws.partiesDir,
		ProfilesDir:  ws.profilesDir,
		ResultsDir:   ws.resultsDir,
		OutRoot:      ws.outRoot,
		ScratchDir:   ws.scratchDir,
		RestoreRoot:  ws.restoreRoot,
		Engine:       eng,
		LockWait:     100 * time.Millisecond,
		Now:          func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

const twoSessions = `
- negotiation:
    deadline: 30
    parties:
      - party: random.jar
        profile: PROFILES/party1.json
        parameters:
          persistentState: state/random.json
      - party: boulware.jar
        profile: PROFILES/party2.json
- learn:
    deadline: 10
    parties:
      - party: random.jar
        profile: ignored.json
        parameters:
          persistentState: state/random.json
          negotiationData: [data/a.json]
`

// fakeEngine plays the external runner: parties write their persistent
// state under their token, the engine writes a result trace.
type fakeEngine struct {
	dir       string
	scratch   string
	requests  []engine.Request
	exitCodes map[int]int
	stderr    string
}

func (f *fakeEngine) Execute(_ context.Context, req engine.Request) (engine.Execution, error) {
	n := len(f.requests)
	f.requests = append(f.requests, req)
	resultPath := filepath.Join(f.dir, fmt.Sprintf("results-%d.json", n))

	for _, p := range req.Settings().Participants {
		for _, pw := range p.TeamInfo.Parties {
			tok, _ := pw.Party.Parameters[settings.ParamPersistentState].(string)
			if tok == "" {
				continue
			}
			if err := os.MkdirAll(f.scratch, 0o755); err != nil {
				return engine.Execution{}, err
			}
			if err := os.WriteFile(filepath.Join(f.scratch, tok), []byte(fmt.Sprintf(`{"session":%d}`, n)), 0o644); err != nil {
				return engine.Execution{}, err
			}
		}
	}
	if code := f.exitCodes[n]; code != 0 {
		preview := f.stderr
		if preview == "" {
			preview = "java.lang.OutOfMemoryError"
		}
		return engine.Execution{ResultPath: resultPath, ExitCode: code, ErrPreview: preview}, nil
	}

	var result map[string]any
	if req.SAOP != nil {
		profiles := map[string]any{}
		for i, p := range req.SAOP.Participants {
			profiles[fmt.Sprintf("party%d", i+1)] = map[string]any{
				"party":   map[string]any{"partyref": p.TeamInfo.Parties[0].Party.PartyRef},
				"profile": p.TeamInfo.Parties[0].Profile,
			}
		}
		bid := map[string]any{"issuevalues": map[string]any{"price": "high", "speed": "fast"}}
		result = map[string]any{"SAOPState": map[string]any{
			"partyprofiles": profiles,
			"actions": []any{
				map[string]any{"offer": map[string]any{"actor": "party1", "bid": bid}},
				map[string]any{"accept": map[string]any{"actor": "party2", "bid": bid}},
			},
		}}
	} else {
		result = map[string]any{"LearnState": map[string]any{"actions": []any{}}}
	}
	if err := store.WriteJSONAtomic(resultPath, result); err != nil {
		return engine.Execution{}, err
	}
	return engine.Execution{ResultPath: resultPath, DurationMs: 5}, nil
}

func readProgressKinds(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open progress: %v", err)
	}
	defer func() { _ = f.Close() }()
	var kinds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev ProgressEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("progress line %q: %v", sc.Text(), err)
		}
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestRun_WritesReportsAndRestoresArtifacts(t *testing.T) {
	ws := newWorkspace(t)
	ws.writeSettings(t, twoSessions)
	eng := &fakeEngine{dir: t.TempDir(), scratch: ws.scratchDir}

	sum, err := ws.runner(eng).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != StatusOK || len(sum.Sessions) != 2 || sum.Restored != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(eng.requests) != 2 || eng.requests[0].SAOP == nil || eng.requests[1].Learn == nil {
		t.Fatalf("unexpected engine requests: %+v", eng.requests)
	}

	// Same path, same token across sessions; the raw path never reaches the engine.
	tok0 := eng.requests[0].SAOP.Participants[0].TeamInfo.Parties[0].Party.Parameters[settings.ParamPersistentState]
	tok1 := eng.requests[1].Learn.Participants[0].TeamInfo.Parties[0].Party.Parameters[settings.ParamPersistentState]
	if tok0 != tok1 || tok0 == "state/random.json" {
		t.Fatalf("expected one stable token, got %v and %v", tok0, tok1)
	}
	if got := eng.requests[1].Learn.Participants[0].TeamInfo.Parties[0].Profile; got != settings.LearnProfilePlaceholder {
		t.Fatalf("learn profile not replaced: %q", got)
	}

	for _, name := range []string{"0001_negotiation.json", "0002_learn.json"} {
		if _, err := os.Stat(filepath.Join(ws.resultsDir, name)); err != nil {
			t.Fatalf("missing report %s: %v", name, err)
		}
	}
	var rep map[string]any
	if err := store.ReadJSON(filepath.Join(ws.resultsDir, "0001_negotiation.json"), &rep); err != nil {
		t.Fatalf("read report: %v", err)
	}
	actions := rep["SAOPState"].(map[string]any)["actions"].([]any)
	offer := actions[0].(map[string]any)["offer"].(map[string]any)
	if utils, ok := offer["utilities"].(map[string]any); !ok || len(utils) != 2 {
		t.Fatalf("expected utilities for both parties, got %#v", offer["utilities"])
	}
	if sum.Sessions[0].ScoredActions != 2 {
		t.Fatalf("expected 2 scored actions, got %+v", sum.Sessions[0])
	}

	restored, err := os.ReadFile(filepath.Join(ws.restoreRoot, "state", "random.json"))
	if err != nil {
		t.Fatalf("restored artifact: %v", err)
	}
	if string(restored) != `{"session":1}` {
		t.Fatalf("expected the last session's state, got %s", restored)
	}
	left, err := os.ReadDir(ws.scratchDir)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected no tokens left in scratch, got %d entries", len(left))
	}

	var onDisk Summary
	if err := store.ReadJSON(sum.Path, &onDisk); err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if onDisk.RunID != sum.RunID || onDisk.Status != StatusOK {
		t.Fatalf("unexpected summary on disk: %+v", onDisk)
	}
	kinds := readProgressKinds(t, filepath.Join(filepath.Dir(sum.Path), "progress.jsonl"))
	want := []string{
		EventSessionStart, EventEngineExit, EventReportWritten,
		EventSessionStart, EventEngineExit, EventReportWritten,
		EventBatchDone,
	}
	if strings.Join(kinds, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected progress: %v", kinds)
	}
	if _, err := os.Stat(filepath.Join(ws.outRoot, "batch.lock")); !os.IsNotExist(err) {
		t.Fatalf("batch lock must be released, stat err=%v", err)
	}
}

func TestRun_RelativeProfilesReachEngineInOtherWorkdir(t *testing.T) {
	ws := newWorkspace(t)
	chdir(t, ws.root)
	body := strings.NewReplacer("PROFILES/", "profiles/").Replace(twoSessions)
	if err := os.WriteFile(ws.settings, []byte(body), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}
	eng := &fakeEngine{dir: t.TempDir(), scratch: ws.scratchDir}
	r := ws.runner(eng)
	r.ProfileBaseDir = t.TempDir()

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := eng.requests[0].SAOP.Participants[0].TeamInfo.Parties[0].Profile
	if !strings.HasPrefix(got, "file:") || !filepath.IsAbs(filepath.FromSlash(strings.TrimPrefix(got, "file:"))) {
		t.Fatalf("expected absolute file: profile, got %q", got)
	}
	if sum.Sessions[0].ScoredActions != 2 {
		t.Fatalf("expected scored report, got %+v", sum.Sessions[0])
	}
}

func TestRun_EngineExitAbortsBatchButRestores(t *testing.T) {
	ws := newWorkspace(t)
	ws.writeSettings(t, twoSessions)
	eng := &fakeEngine{dir: t.TempDir(), scratch: ws.scratchDir, exitCodes: map[int]int{0: 3}}

	sum, err := ws.runner(eng).Run(context.Background())
	var se *SessionError
	if !errors.As(err, &se) {
		t.Fatalf("expected SessionError, got %v", err)
	}
	if se.Index != 0 || se.ExitCode != 3 || se.Code != codes.EngineExitCode(3) || CodeOf(err) != "NB_E_ENGINE_EXIT_3" {
		t.Fatalf("unexpected session error: %+v", se)
	}
	if !strings.Contains(err.Error(), "OutOfMemoryError") {
		t.Fatalf("expected stderr preview in error, got %v", err)
	}
	if len(eng.requests) != 1 {
		t.Fatalf("remaining sessions must not run, got %d requests", len(eng.requests))
	}
	if sum.Status != StatusAborted || sum.FailedSession == nil || *sum.FailedSession != 0 || sum.Restored != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if _, err := os.Stat(filepath.Join(ws.restoreRoot, "state", "random.json")); err != nil {
		t.Fatalf("artifact must be restored after abort: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ws.resultsDir, "0001_negotiation.json")); !os.IsNotExist(err) {
		t.Fatalf("no report expected for failed session, stat err=%v", err)
	}
}

func TestRun_EngineStderrIsRedacted(t *testing.T) {
	ws := newWorkspace(t)
	ws.writeSettings(t, twoSessions)
	eng := &fakeEngine{
		dir:       t.TempDir(),
		scratch:   ws.scratchDir,
		exitCodes: map[int]int{0: 1},
		stderr:    "upload with key hunter2-minio failed; Authorization: Bearer abcdefghijklmnop",
	}
	r := ws.runner(eng)
	r.Secrets = []string{"hunter2-minio", ""}

	sum, err := r.Run(context.Background())
	if err == nil {
		t.Fatalf("expected engine failure")
	}
	for _, leaked := range []string{"hunter2-minio", "abcdefghijklmnop"} {
		if strings.Contains(err.Error(), leaked) || strings.Contains(sum.Error, leaked) {
			t.Fatalf("secret %q leaked: err=%v summary=%q", leaked, err, sum.Error)
		}
	}
	if !strings.Contains(sum.Error, "[REDACTED:CONFIGURED_SECRET]") {
		t.Fatalf("expected redaction marker, got %q", sum.Error)
	}
}

func TestRun_InvalidSettingsRunsNothing(t *testing.T) {
	ws := newWorkspace(t)
	ws.writeSettings(t, `
- negotiation:
    deadline: 30
    parties:
      - party: unknown.jar
        profile: PROFILES/party1.json
      - party: boulware.jar
        profile: PROFILES/missing.json
`)
	eng := &fakeEngine{dir: t.TempDir(), scratch: ws.scratchDir}

	sum, err := ws.runner(eng).Run(context.Background())
	var ve *settings.ValidationError
	if !errors.As(err, &ve) || len(ve.Findings) != 2 {
		t.Fatalf("expected two findings, got %v", err)
	}
	if CodeOf(err) != codes.SettingsInvalid {
		t.Fatalf("unexpected code %s", CodeOf(err))
	}
	if len(eng.requests) != 0 {
		t.Fatalf("engine must not run on invalid settings")
	}
	if sum.Status != StatusInvalid || sum.ErrorCode != codes.SettingsInvalid {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, string) (publish.Object, error) {
	return publish.Object{}, errors.New("connection refused")
}

type recordingPublisher struct{ keys []string }

func (p *recordingPublisher) Publish(_ context.Context, runID string, reportPath string) (publish.Object, error) {
	obj := publish.Object{Bucket: "reports", Key: publish.ObjectKey("nightly", runID, reportPath)}
	p.keys = append(p.keys, obj.Key)
	return obj, nil
}

func TestRun_PublishesEveryReport(t *testing.T) {
	ws := newWorkspace(t)
	ws.writeSettings(t, twoSessions)
	pub := &recordingPublisher{}
	r := ws.runner(&fakeEngine{dir: t.TempDir(), scratch: ws.scratchDir})
	r.Publisher = pub

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(pub.keys) != 2 || pub.keys[1] != "nightly/"+sum.RunID+"/0002_learn.json" {
		t.Fatalf("unexpected uploads: %v", pub.keys)
	}
	if sum.Sessions[0].Object != "reports/nightly/"+sum.RunID+"/0001_negotiation.json" {
		t.Fatalf("unexpected object in summary: %+v", sum.Sessions[0])
	}
}

func TestRun_PublishFailureIsFatal(t *testing.T) {
	ws := newWorkspace(t)
	ws.writeSettings(t, twoSessions)
	eng := &fakeEngine{dir: t.TempDir(), scratch: ws.scratchDir}
	r := ws.runner(eng)
	r.Publisher = failingPublisher{}

	_, err := r.Run(context.Background())
	if CodeOf(err) != codes.Publish {
		t.Fatalf("expected %s, got %v", codes.Publish, err)
	}
	if len(eng.requests) != 1 {
		t.Fatalf("batch must stop at the failed upload, got %d requests", len(eng.requests))
	}
}

func TestRun_LockHeldByAnotherBatch(t *testing.T) {
	ws := newWorkspace(t)
	ws.writeSettings(t, twoSessions)
	if err := os.MkdirAll(filepath.Join(ws.outRoot, "batch.lock"), 0o755); err != nil {
		t.Fatalf("mkdir lock: %v", err)
	}
	eng := &fakeEngine{dir: t.TempDir(), scratch: ws.scratchDir}

	_, err := ws.runner(eng).Run(context.Background())
	if !store.IsLockTimeout(err) || CodeOf(err) != codes.LockTimeout {
		t.Fatalf("expected lock timeout, got %v", err)
	}
	if len(eng.requests) != 0 {
		t.Fatalf("engine must not run without the lock")
	}
}
