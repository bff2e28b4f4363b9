package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcohefti/negobatch/internal/publish"
	"github.com/marcohefti/negobatch/internal/store"
)

const (
	ProjectConfigSchemaV1    = 1
	DefaultProjectConfigPath = "negobatch.config.json"

	DefaultSettingsPath = "settings.yaml"
	DefaultPartiesDir   = "parties"
	DefaultProfilesDir  = "profiles"
	DefaultResultsDir   = "results"
	DefaultOutRoot      = ".negobatch"
	DefaultRunnerJar    = "scripts/simplerunner-1.6.1-jar-with-dependencies.jar"
	DefaultRequestFile  = "settings.json"
	DefaultResultFile   = "results.json"
)

// ProjectConfigV1 is the per-repo config created by `negobatch init`.
// Secrets are never read from it; the publish secret key comes from the
// environment only.
type ProjectConfigV1 struct {
	SchemaVersion int            `json:"schemaVersion"`
	SettingsPath  string         `json:"settingsPath,omitempty"`
	PartiesDir    string         `json:"partiesDir,omitempty"`
	ProfilesDir   string         `json:"profilesDir,omitempty"`
	ResultsDir    string         `json:"resultsDir,omitempty"`
	OutRoot       string         `json:"outRoot,omitempty"`
	ScratchDir    string         `json:"scratchDir,omitempty"`
	RestoreRoot   string         `json:"restoreRoot,omitempty"`
	Engine        EngineConfig   `json:"engine,omitempty"`
	Publish       publish.Config `json:"publish,omitempty"`
}

type InitResult struct {
	OK         bool   `json:"ok"`
	ConfigPath string `json:"configPath"`
	OutRoot    string `json:"outRoot"`
	ResultsDir string `json:"resultsDir"`
	Created    bool   `json:"created"`
	DirsReady  bool   `json:"dirsReady"`
}

func loadProject(path string) (ProjectConfigV1, bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ProjectConfigV1{}, false, nil
		}
		return ProjectConfigV1{}, false, err
	}
	var cfg ProjectConfigV1
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return ProjectConfigV1{}, false, fmt.Errorf("invalid project config %s: %w", path, err)
	}
	if cfg.SchemaVersion != ProjectConfigSchemaV1 {
		return ProjectConfigV1{}, false, fmt.Errorf("project config unsupported schemaVersion=%d", cfg.SchemaVersion)
	}
	return cfg, true, nil
}

// InitProject writes a project config and creates the output directories.
// Re-running with the same outRoot is a no-op.
func InitProject(configPath string, outRoot string, resultsDir string) (*InitResult, error) {
	if strings.TrimSpace(configPath) == "" {
		configPath = DefaultProjectConfigPath
	}
	if strings.TrimSpace(outRoot) == "" {
		outRoot = DefaultOutRoot
	}
	if strings.TrimSpace(resultsDir) == "" {
		resultsDir = DefaultResultsDir
	}

	if err := os.MkdirAll(filepath.Join(outRoot, "runs"), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(resultsDir, 0o755); err != nil {
		return nil, err
	}

	created := false
	if _, err := os.Stat(configPath); err == nil {
		existing, _, err := loadProject(configPath)
		if err != nil {
			return nil, err
		}
		have := existing.OutRoot
		if have == "" {
			have = DefaultOutRoot
		}
		if have != outRoot {
			return nil, fmt.Errorf("existing config outRoot=%q does not match requested outRoot=%q", have, outRoot)
		}
	} else if os.IsNotExist(err) {
		cfg := ProjectConfigV1{
			SchemaVersion: ProjectConfigSchemaV1,
			SettingsPath:  DefaultSettingsPath,
			PartiesDir:    DefaultPartiesDir,
			ProfilesDir:   DefaultProfilesDir,
			ResultsDir:    resultsDir,
			OutRoot:       outRoot,
			Engine: EngineConfig{
				RunnerJar:   DefaultRunnerJar,
				RequestFile: DefaultRequestFile,
				ResultFile:  DefaultResultFile,
			},
		}
		if err := store.WriteJSONAtomic(configPath, cfg); err != nil {
			return nil, err
		}
		created = true
	} else {
		return nil, err
	}

	return &InitResult{
		OK:         true,
		ConfigPath: configPath,
		OutRoot:    outRoot,
		ResultsDir: resultsDir,
		Created:    created,
		DirsReady:  true,
	}, nil
}
