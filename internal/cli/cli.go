package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/marcohefti/negobatch/internal/config"
	"github.com/marcohefti/negobatch/internal/contract"
	"github.com/marcohefti/negobatch/internal/engine"
)

type Runner struct {
	Version string
	Now     func() time.Time
	Stdout  io.Writer
	Stderr  io.Writer

	// NewEngine overrides the engine built from config (tests).
	NewEngine func(m config.Merged, stdout, stderr io.Writer) engine.Engine
}

func (r Runner) Run(args []string) int {
	if r.Stdout == nil {
		r.Stdout = os.Stdout
	}
	if r.Stderr == nil {
		r.Stderr = os.Stderr
	}
	if r.Now == nil {
		r.Now = time.Now
	}

	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printRootHelp(r.Stdout)
		return 0
	}

	switch args[0] {
	case "run":
		return r.runRun(args[1:])
	case "validate":
		return r.runValidate(args[1:])
	case "score":
		return r.runScore(args[1:])
	case "agents":
		return r.runAgents(args[1:])
	case "doctor":
		return r.runDoctor(args[1:])
	case "init":
		return r.runInit(args[1:])
	case "gc":
		return r.runGC(args[1:])
	case "pin":
		return r.runPin(args[1:])
	case "contract":
		return r.runContract(args[1:])
	case "version":
		fmt.Fprintf(r.Stdout, "%s\n", r.Version)
		return 0
	default:
		fmt.Fprintf(r.Stderr, codeUsage+": unknown command %q\n", args[0])
		printRootHelp(r.Stderr)
		return 2
	}
}

func (r Runner) runContract(args []string) int {
	fs := flag.NewFlagSet("contract", flag.ContinueOnError)
	fs.SetOutput(io.Discard) // avoid flag package writing to stderr

	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("contract: invalid flags")
	}
	if *help {
		printContractHelp(r.Stdout)
		return 0
	}
	if !*jsonOut {
		printContractHelp(r.Stderr)
		return r.failUsage("contract: require --json for stable output")
	}
	return r.writeJSON(contract.Build(r.Version))
}

// workspaceFlags registers the config overrides shared by commands that read
// the batch inputs.
func workspaceFlags(fs *flag.FlagSet) *config.Flags {
	f := &config.Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "project config path (default negobatch.config.json when present)")
	fs.StringVar(&f.SettingsPath, "settings", "", "batch settings file (default settings.yaml)")
	fs.StringVar(&f.PartiesDir, "parties-dir", "", "agent jar directory (default parties)")
	fs.StringVar(&f.ProfilesDir, "profiles-dir", "", "profile directory (default profiles)")
	fs.StringVar(&f.ResultsDir, "results-dir", "", "report directory (default results)")
	fs.StringVar(&f.OutRoot, "out-root", "", "run metadata root (default .negobatch)")
	return f
}

func (r Runner) loadConfig(flags config.Flags) (config.Merged, int, bool) {
	m, err := config.LoadMerged(flags)
	if err != nil {
		fmt.Fprintf(r.Stderr, codeConfig+": %s\n", err.Error())
		return config.Merged{}, 2, false
	}
	return m, 0, true
}

func (r Runner) writeJSON(v any) int {
	enc := json.NewEncoder(r.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(r.Stderr, codeIO+": failed to encode json\n")
		return 1
	}
	return 0
}

func (r Runner) failUsage(msg string) int {
	fmt.Fprintf(r.Stderr, codeUsage+": %s\n", msg)
	return 2
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func printRootHelp(w io.Writer) {
	fmt.Fprint(w, `negobatch (negotiation batch runner)

Usage:
  negobatch run [--settings settings.yaml] [--json]
  negobatch validate [--settings settings.yaml] [--json]
  negobatch score --profile <path> --bid issue=value [--bid ...] [--json]

Commands:
  run        Validate the batch and run every session through the engine, in order.
  validate   Validate the batch and print the engine requests without running anything.
  score      Compute the utility of one bid under one profile.
  agents     List the identifier table built from agent jars.
  doctor     Check environment/config sanity.
  init       Write negobatch.config.json and create output dirs.
  gc         Remove old run metadata under .negobatch/runs (pinned runs are kept).
  pin        Pin or unpin a run.
  contract   Print the negobatch surface contract (use --json).
  version    Print version.
`)
}

func printContractHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  negobatch contract --json
`)
}
