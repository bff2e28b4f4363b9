package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/marcohefti/negobatch/internal/agents"
	"github.com/marcohefti/negobatch/internal/config"
	"github.com/marcohefti/negobatch/internal/settings"
)

type Check struct {
	ID      string `json:"id"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type Result struct {
	OK      bool    `json:"ok"`
	OutRoot string  `json:"outRoot"`
	Checks  []Check `json:"checks"`
}

func (r *Result) add(id string, err error, okMsg string) {
	if err != nil {
		r.OK = false
		r.Checks = append(r.Checks, Check{ID: id, OK: false, Message: err.Error()})
		return
	}
	r.Checks = append(r.Checks, Check{ID: id, OK: true, Message: okMsg})
}

func Run(flags config.Flags) (Result, error) {
	m, err := config.LoadMerged(flags)
	if err != nil {
		return Result{}, err
	}
	return Inspect(m), nil
}

// Inspect inspects an already merged config. It never fails; problems become
// checks with ok=false.
func Inspect(m config.Merged) Result {
	res := Result{OK: true, OutRoot: m.OutRoot}

	res.add("write_access", probeWrite(filepath.Join(m.OutRoot, "runs")), "")
	res.add("scratch_dir", probeWrite(m.ScratchDir), m.ScratchDir)

	cfgMsg := "missing (ok)"
	if m.ConfigPath != "" {
		cfgMsg = m.ConfigPath
	}
	res.add("project_config", nil, cfgMsg)

	if _, err := os.Stat(m.SettingsPath); err != nil {
		res.add("settings_file", err, "")
	} else {
		res.add("settings_file", nil, m.SettingsPath)
	}

	if table, err := agents.Scan(m.PartiesDir); err != nil {
		res.add("agents", err, "")
	} else {
		res.add("agents", nil, fmt.Sprintf("%d agent jar(s) in %s", len(table.Agents()), m.PartiesDir))
	}

	if set, err := settings.DiscoverProfiles(m.ProfilesDir); err != nil {
		res.add("profiles", err, "")
	} else {
		res.add("profiles", nil, fmt.Sprintf("%d profile(s) in %s", set.Len(), m.ProfilesDir))
	}

	if len(m.Engine.Command) == 0 {
		res.add("engine_command", fmt.Errorf("engine.command is empty"), "")
	} else if path, err := exec.LookPath(m.Engine.Command[0]); err != nil {
		res.add("engine_command", err, "")
	} else {
		res.add("engine_command", nil, path)
	}
	if m.Sources["engine.command"] == "default" {
		if _, err := os.Stat(m.Engine.RunnerJar); err != nil {
			res.add("engine_runner_jar", err, "")
		} else {
			res.add("engine_runner_jar", nil, m.Engine.RunnerJar)
		}
	}

	if m.Publish.Enabled() {
		res.add("publish", nil, fmt.Sprintf("s3://%s at %s", m.Publish.Bucket, m.Publish.Endpoint))
	} else {
		res.add("publish", nil, "disabled (ok)")
	}
	return res
}

// probeWrite creates dir and a temp file in it.
func probeWrite(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(dir, ".doctor.tmp")
	if err := os.WriteFile(tmp, []byte("ok\n"), 0o644); err != nil {
		return err
	}
	return os.Remove(tmp)
}
