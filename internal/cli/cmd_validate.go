package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/marcohefti/negobatch/internal/anonymize"
	"github.com/marcohefti/negobatch/internal/batch"
	"github.com/marcohefti/negobatch/internal/engine"
	"github.com/marcohefti/negobatch/internal/settings"
)

type validateResult struct {
	OK       bool               `json:"ok"`
	Code     string             `json:"code,omitempty"`
	Message  string             `json:"message,omitempty"`
	Findings []settings.Finding `json:"findings,omitempty"`
	Sessions int                `json:"sessions"`
	Requests []engine.Request   `json:"requests,omitempty"`
}

func (r Runner) runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	flags := workspaceFlags(fs)
	fs.StringVar(&flags.Workdir, "workdir", "", "engine working directory; relative profiles become absolute when it differs from .")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("validate: invalid flags")
	}
	if *help {
		printValidateHelp(r.Stdout)
		return 0
	}
	m, code, ok := r.loadConfig(*flags)
	if !ok {
		return code
	}

	b, _, err := batch.Load(m.SettingsPath, m.PartiesDir, m.ProfilesDir, m.Engine.Workdir, anonymize.NewMap())
	if err != nil {
		if !*jsonOut {
			return reportError(r.Stderr, err)
		}
		res := validateResult{OK: false, Code: batch.CodeOf(err), Message: err.Error()}
		var ve *settings.ValidationError
		if errors.As(err, &ve) {
			res.Findings = ve.Findings
		}
		if code := r.writeJSON(res); code != 0 {
			return code
		}
		return exitCodeFor(res.Code)
	}

	requests := engine.BuildAll(b)
	if *jsonOut {
		return r.writeJSON(validateResult{OK: true, Sessions: len(b.Sessions), Requests: requests})
	}
	fmt.Fprintf(r.Stdout, "ok: %d session(s)\n", len(b.Sessions))
	return 0
}

func printValidateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  negobatch validate [--settings settings.yaml] [--parties-dir parties] [--profiles-dir profiles] [--workdir .] [--json]

Every finding is reported. Nothing is run.
`)
}
