package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/marcohefti/negobatch/internal/config"
	"github.com/marcohefti/negobatch/internal/gc"
	"github.com/marcohefti/negobatch/internal/pin"
)

func (r Runner) runGC(args []string) int {
	fs := flag.NewFlagSet("gc", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "project config path")
	outRoot := fs.String("out-root", "", "run metadata root (default .negobatch)")
	keepLast := fs.Int("keep-last", 0, "always keep the newest N runs")
	maxAgeDays := fs.Int("max-age-days", 30, "delete unpinned runs older than this (0 disables)")
	maxTotalBytes := fs.Int64("max-total-bytes", 0, "delete oldest unpinned runs until under this size (0 disables)")
	dryRun := fs.Bool("dry-run", false, "list what would be deleted")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("gc: invalid flags")
	}
	if *help {
		printGCHelp(r.Stdout)
		return 0
	}
	if *maxAgeDays < 0 || *maxTotalBytes < 0 || *keepLast < 0 {
		return r.failUsage("gc: limits must be >= 0")
	}
	m, code, ok := r.loadConfig(config.Flags{ConfigPath: *configPath, OutRoot: *outRoot})
	if !ok {
		return code
	}

	res, err := gc.Run(gc.Opts{
		OutRoot:       m.OutRoot,
		Now:           r.Now(),
		MaxAgeDays:    *maxAgeDays,
		KeepLast:      *keepLast,
		MaxTotalBytes: *maxTotalBytes,
		DryRun:        *dryRun,
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, codeIO+": %s\n", err.Error())
		return 1
	}
	if *jsonOut {
		if code := r.writeJSON(res); code != 0 {
			return code
		}
	} else {
		verb := "deleted"
		if res.DryRun {
			verb = "would delete"
		}
		fmt.Fprintf(r.Stdout, "%s %d run(s), kept %d\n", verb, len(res.Deleted), len(res.Kept))
	}
	if !res.OK {
		for _, e := range res.Errors {
			fmt.Fprintf(r.Stderr, codeIO+": %s\n", e)
		}
		return 1
	}
	return 0
}

func (r Runner) runPin(args []string) int {
	fs := flag.NewFlagSet("pin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "project config path")
	outRoot := fs.String("out-root", "", "run metadata root (default .negobatch)")
	runID := fs.String("run-id", "", "run id (required)")
	unpin := fs.Bool("off", false, "remove the pin")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("pin: invalid flags")
	}
	if *help {
		printPinHelp(r.Stdout)
		return 0
	}
	m, code, ok := r.loadConfig(config.Flags{ConfigPath: *configPath, OutRoot: *outRoot})
	if !ok {
		return code
	}
	res, err := pin.Set(pin.Opts{OutRoot: m.OutRoot, RunID: *runID, Pinned: !*unpin})
	if err != nil {
		return r.failUsage("pin: " + err.Error())
	}
	if *jsonOut {
		return r.writeJSON(res)
	}
	fmt.Fprintf(r.Stdout, "%s pinned=%t\n", res.RunID, res.Pinned)
	return 0
}

func printGCHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  negobatch gc [--out-root .negobatch] [--max-age-days 30] [--max-total-bytes 0] [--keep-last 0] [--dry-run] [--json]
`)
}

func printPinHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  negobatch pin --run-id <runId> [--off] [--out-root .negobatch] [--json]
`)
}
