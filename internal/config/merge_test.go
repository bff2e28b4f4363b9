package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(wd)
	})
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	return dir
}

func TestLoadMerged_PrecedenceFlagEnvProjectDefault(t *testing.T) {
	chdirTemp(t)

	// Default
	m, err := LoadMerged(Flags{})
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if m.OutRoot != DefaultOutRoot || m.Sources["outRoot"] != "default" || m.ConfigPath != "" {
		t.Fatalf("unexpected default: %+v", m)
	}
	if m.SettingsPath != "settings.yaml" || m.ResultsDir != "results" || m.Engine.ResultFile != "results.json" {
		t.Fatalf("unexpected defaults: %+v", m)
	}
	if m.ScratchDir != DefaultScratchDir() {
		t.Fatalf("unexpected scratch dir: %q", m.ScratchDir)
	}

	// Project overrides default
	if err := os.WriteFile(DefaultProjectConfigPath, []byte(`{"schemaVersion":1,"outRoot":".nb-project","resultsDir":"out"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err = LoadMerged(Flags{})
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if m.OutRoot != ".nb-project" || m.ResultsDir != "out" || m.Sources["outRoot"] != DefaultProjectConfigPath {
		t.Fatalf("unexpected project: %+v", m)
	}

	// Env overrides project
	t.Setenv("NB_OUT_ROOT", ".nb-env")
	m, err = LoadMerged(Flags{})
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if m.OutRoot != ".nb-env" || m.Sources["outRoot"] != "env:NB_OUT_ROOT" {
		t.Fatalf("unexpected env: %+v", m)
	}

	// Flag overrides env
	m, err = LoadMerged(Flags{OutRoot: ".nb-flag"})
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if m.OutRoot != ".nb-flag" || m.Sources["outRoot"] != "flag" {
		t.Fatalf("unexpected flag: %+v", m)
	}
}

func TestLoadMerged_EngineCommand(t *testing.T) {
	chdirTemp(t)

	m, err := LoadMerged(Flags{PartiesDir: "agents"})
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	want := "scripts/simplerunner-1.6.1-jar-with-dependencies.jar" + string(os.PathListSeparator) + filepath.Join("agents", "*")
	if len(m.Engine.Command) != 5 || m.Engine.Command[0] != "java" || m.Engine.Command[2] != want || m.Engine.Command[4] != "settings.json" {
		t.Fatalf("unexpected default command: %#v", m.Engine.Command)
	}

	if err := os.WriteFile(DefaultProjectConfigPath, []byte(`{"schemaVersion":1,"engine":{"command":["/opt/my runner/run.sh","--fast"]}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err = LoadMerged(Flags{})
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if len(m.Engine.Command) != 2 || m.Engine.Command[0] != "/opt/my runner/run.sh" {
		t.Fatalf("project argv must be kept intact: %#v", m.Engine.Command)
	}

	t.Setenv("NB_ENGINE_COMMAND", "  ./fake-engine  a b ")
	m, err = LoadMerged(Flags{})
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	if strings.Join(m.Engine.Command, "|") != "./fake-engine|a|b" {
		t.Fatalf("unexpected env command: %#v", m.Engine.Command)
	}
}

func TestLoadMerged_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		project string
		env     map[string]string
		flags   Flags
	}{
		{name: "bad schema", project: `{"schemaVersion":2}`},
		{name: "unknown field", project: `{"schemaVersion":1,"outRot":"x"}`},
		{name: "secret in file", project: `{"schemaVersion":1,"publish":{"secretKey":"s"}}`},
		{name: "same request and result", env: map[string]string{"NB_ENGINE_RESULT_FILE": "settings.json"}},
		{name: "result file with dir", env: map[string]string{"NB_ENGINE_RESULT_FILE": "out/results.json"}},
		{name: "bad ssl bool", env: map[string]string{"NB_PUBLISH_USE_SSL": "maybe"}},
		{name: "publish without keys", env: map[string]string{"NB_PUBLISH_ENDPOINT": "localhost:9000"}},
		{name: "missing explicit config", flags: Flags{ConfigPath: "nope.json"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chdirTemp(t)
			if tc.project != "" {
				if err := os.WriteFile(DefaultProjectConfigPath, []byte(tc.project), 0o644); err != nil {
					t.Fatalf("write: %v", err)
				}
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadMerged(tc.flags); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMerged_PublishFromEnv(t *testing.T) {
	chdirTemp(t)
	if err := os.WriteFile(DefaultProjectConfigPath, []byte(`{"schemaVersion":1,"publish":{"bucket":"reports","prefix":"nightly","accessKey":"ak"}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("NB_PUBLISH_ENDPOINT", "minio.local:9000")
	t.Setenv("NB_PUBLISH_SECRET_KEY", "sk")
	t.Setenv("NB_PUBLISH_USE_SSL", "true")

	m, err := LoadMerged(Flags{})
	if err != nil {
		t.Fatalf("LoadMerged: %v", err)
	}
	p := m.Publish
	if !p.Enabled() || p.Bucket != "reports" || p.Prefix != "nightly" || p.AccessKey != "ak" || p.SecretKey != "sk" || !p.UseSSL {
		t.Fatalf("unexpected publish config: %+v", p)
	}
}
