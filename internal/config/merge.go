package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/marcohefti/negobatch/internal/publish"
)

type Merged struct {
	SettingsPath string
	PartiesDir   string
	ProfilesDir  string
	ResultsDir   string
	OutRoot      string
	ScratchDir   string
	// RestoreRoot, when set, receives restored artifacts under their
	// original relative path instead of the original location.
	RestoreRoot string

	Engine  EngineConfig
	Publish publish.Config

	// ConfigPath is the project config actually read, empty when none.
	ConfigPath string
	// Sources maps each key to where its value came from, for operator UX.
	Sources map[string]string
}

// Flags holds CLI overrides. Empty values do not override.
type Flags struct {
	ConfigPath    string
	SettingsPath  string
	PartiesDir    string
	ProfilesDir   string
	ResultsDir    string
	OutRoot       string
	ScratchDir    string
	RestoreRoot   string
	EngineCommand string
	RunnerJar     string
	Workdir       string
}

func DefaultScratchDir() string {
	return filepath.Join(os.TempDir(), "geniusweb")
}

func LoadMerged(flags Flags) (Merged, error) {
	// Precedence:
	// 1) CLI flags
	// 2) env vars
	// 3) project config (negobatch.config.json)
	// 4) defaults
	cfgPath := DefaultProjectConfigPath
	explicit := false
	if v := strings.TrimSpace(flags.ConfigPath); v != "" {
		cfgPath, explicit = v, true
	} else if v := strings.TrimSpace(os.Getenv("NB_CONFIG")); v != "" {
		cfgPath, explicit = v, true
	}
	project, hasProject, err := loadProject(cfgPath)
	if err != nil {
		return Merged{}, err
	}
	if explicit && !hasProject {
		return Merged{}, fmt.Errorf("project config not found: %s", cfgPath)
	}

	res := Merged{Sources: map[string]string{}}
	if hasProject {
		res.ConfigPath = cfgPath
	}
	pick := func(key string, flag string, envKey string, fromProject string, def string) string {
		if v := strings.TrimSpace(flag); v != "" {
			res.Sources[key] = "flag"
			return v
		}
		if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
			res.Sources[key] = "env:" + envKey
			return v
		}
		if v := strings.TrimSpace(fromProject); v != "" {
			res.Sources[key] = cfgPath
			return v
		}
		res.Sources[key] = "default"
		return def
	}

	res.SettingsPath = pick("settingsPath", flags.SettingsPath, "NB_SETTINGS", project.SettingsPath, DefaultSettingsPath)
	res.PartiesDir = pick("partiesDir", flags.PartiesDir, "NB_PARTIES_DIR", project.PartiesDir, DefaultPartiesDir)
	res.ProfilesDir = pick("profilesDir", flags.ProfilesDir, "NB_PROFILES_DIR", project.ProfilesDir, DefaultProfilesDir)
	res.ResultsDir = pick("resultsDir", flags.ResultsDir, "NB_RESULTS_DIR", project.ResultsDir, DefaultResultsDir)
	res.OutRoot = pick("outRoot", flags.OutRoot, "NB_OUT_ROOT", project.OutRoot, DefaultOutRoot)
	res.ScratchDir = pick("scratchDir", flags.ScratchDir, "NB_SCRATCH_DIR", project.ScratchDir, DefaultScratchDir())
	res.RestoreRoot = pick("restoreRoot", flags.RestoreRoot, "NB_RESTORE_ROOT", project.RestoreRoot, "")

	pe := project.Engine
	res.Engine.RunnerJar = pick("engine.runnerJar", flags.RunnerJar, "NB_ENGINE_RUNNER_JAR", pe.RunnerJar, DefaultRunnerJar)
	res.Engine.RequestFile = pick("engine.requestFile", "", "NB_ENGINE_REQUEST_FILE", pe.RequestFile, DefaultRequestFile)
	res.Engine.ResultFile = pick("engine.resultFile", "", "NB_ENGINE_RESULT_FILE", pe.ResultFile, DefaultResultFile)
	res.Engine.Workdir = pick("engine.workdir", flags.Workdir, "NB_ENGINE_WORKDIR", pe.Workdir, "")
	switch cmd := pick("engine.command", flags.EngineCommand, "NB_ENGINE_COMMAND", strings.Join(pe.Command, " "), ""); {
	case res.Sources["engine.command"] == cfgPath:
		// Keep argv boundaries from the file intact.
		res.Engine.Command = append([]string(nil), pe.Command...)
	case cmd != "":
		res.Engine.Command = ParseCommand(cmd)
	default:
		res.Engine.Command = DefaultEngineCommand(res.Engine.RunnerJar, res.PartiesDir, res.Engine.RequestFile)
	}

	pp := project.Publish
	res.Publish.Endpoint = pick("publish.endpoint", "", "NB_PUBLISH_ENDPOINT", pp.Endpoint, "")
	res.Publish.Bucket = pick("publish.bucket", "", "NB_PUBLISH_BUCKET", pp.Bucket, "negobatch-reports")
	res.Publish.AccessKey = pick("publish.accessKey", "", "NB_PUBLISH_ACCESS_KEY", pp.AccessKey, "")
	res.Publish.SecretKey = pick("publish.secretKey", "", "NB_PUBLISH_SECRET_KEY", "", "")
	res.Publish.Region = pick("publish.region", "", "NB_PUBLISH_REGION", pp.Region, "us-east-1")
	res.Publish.Prefix = pick("publish.prefix", "", "NB_PUBLISH_PREFIX", pp.Prefix, "")
	useSSL, err := envBool("NB_PUBLISH_USE_SSL", pp.UseSSL)
	if err != nil {
		return Merged{}, err
	}
	res.Publish.UseSSL = useSSL

	if err := res.Validate(); err != nil {
		return Merged{}, err
	}
	return res, nil
}

func (m Merged) Validate() error {
	if len(m.Engine.Command) == 0 {
		return fmt.Errorf("engine.command is empty")
	}
	if m.Engine.RequestFile == m.Engine.ResultFile {
		return fmt.Errorf("engine.requestFile and engine.resultFile must differ (both %q)", m.Engine.RequestFile)
	}
	for key, v := range map[string]string{
		"engine.requestFile": m.Engine.RequestFile,
		"engine.resultFile":  m.Engine.ResultFile,
	} {
		if filepath.Base(v) != v {
			return fmt.Errorf("%s must be a bare file name, got %q", key, v)
		}
	}
	if err := m.Publish.Validate(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func envBool(key string, def bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	return v, nil
}
