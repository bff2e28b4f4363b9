package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/marcohefti/negobatch/internal/utility"
)

type scoreResult struct {
	Profile string      `json:"profile"`
	Bid     utility.Bid `json:"bid"`
	Utility float64     `json:"utility"`
}

func (r Runner) runScore(args []string) int {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	profile := fs.String("profile", "", "profile path or file: reference (required)")
	baseDir := fs.String("base-dir", "", "directory relative profile references resolve against")
	var bids stringList
	fs.Var(&bids, "bid", "issue=value (repeatable, one per issue)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("score: invalid flags")
	}
	if *help {
		printScoreHelp(r.Stdout)
		return 0
	}
	if strings.TrimSpace(*profile) == "" || len(bids) == 0 {
		printScoreHelp(r.Stderr)
		return r.failUsage("score: require --profile and at least one --bid")
	}

	bid := utility.Bid{}
	for _, kv := range bids {
		issue, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(issue) == "" {
			return r.failUsage(fmt.Sprintf("score: invalid --bid %q (want issue=value)", kv))
		}
		if _, dup := bid[issue]; dup {
			return r.failUsage(fmt.Sprintf("score: issue %q given twice", issue))
		}
		bid[issue] = value
	}

	p, err := utility.Load(*profile, *baseDir)
	if err != nil {
		fmt.Fprintf(r.Stderr, codeProfileInvalid+": %s\n", err.Error())
		return 1
	}
	u, err := utility.ScoreBid(p, bid)
	if err != nil {
		fmt.Fprintf(r.Stderr, codeScore+": %s\n", err.Error())
		return 1
	}
	if *jsonOut {
		return r.writeJSON(scoreResult{Profile: *profile, Bid: bid, Utility: u})
	}
	fmt.Fprintf(r.Stdout, "%g\n", u)
	return 0
}

func printScoreHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  negobatch score --profile <path|file:ref> --bid issue=value [--bid ...] [--base-dir <dir>] [--json]
`)
}
