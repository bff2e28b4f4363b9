package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/marcohefti/negobatch/internal/config"
	"github.com/marcohefti/negobatch/internal/doctor"
)

func (r Runner) runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	flags := workspaceFlags(fs)
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("doctor: invalid flags")
	}
	if *help {
		printDoctorHelp(r.Stdout)
		return 0
	}
	res, err := doctor.Run(*flags)
	if err != nil {
		fmt.Fprintf(r.Stderr, codeConfig+": %s\n", err.Error())
		return 2
	}
	if *jsonOut {
		if code := r.writeJSON(res); code != 0 {
			return code
		}
	} else {
		for _, c := range res.Checks {
			status := "ok"
			if !c.OK {
				status = "FAIL"
			}
			fmt.Fprintf(r.Stdout, "%-4s %s", status, c.ID)
			if c.Message != "" {
				fmt.Fprintf(r.Stdout, ": %s", c.Message)
			}
			fmt.Fprintln(r.Stdout)
		}
	}
	if !res.OK {
		return 1
	}
	return 0
}

func (r Runner) runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", config.DefaultProjectConfigPath, "project config path")
	outRoot := fs.String("out-root", config.DefaultOutRoot, "run metadata root")
	resultsDir := fs.String("results-dir", config.DefaultResultsDir, "report directory")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("init: invalid flags")
	}
	if *help {
		printInitHelp(r.Stdout)
		return 0
	}
	res, err := config.InitProject(*configPath, *outRoot, *resultsDir)
	if err != nil {
		fmt.Fprintf(r.Stderr, codeIO+": %s\n", err.Error())
		return 1
	}
	if *jsonOut {
		return r.writeJSON(res)
	}
	if res.Created {
		fmt.Fprintf(r.Stdout, "created %s\n", res.ConfigPath)
	} else {
		fmt.Fprintf(r.Stdout, "%s already initialized\n", res.ConfigPath)
	}
	return 0
}

func printDoctorHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  negobatch doctor [--config negobatch.config.json] [--json]
`)
}

func printInitHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  negobatch init [--config negobatch.config.json] [--out-root .negobatch] [--results-dir results] [--json]
`)
}
