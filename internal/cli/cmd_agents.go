package cli

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/marcohefti/negobatch/internal/agents"
	"github.com/marcohefti/negobatch/internal/config"
)

func (r Runner) runAgents(args []string) int {
	fs := flag.NewFlagSet("agents", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	configPath := fs.String("config", "", "project config path")
	partiesDir := fs.String("parties-dir", "", "agent jar directory (default parties)")
	jsonOut := fs.Bool("json", false, "print JSON output")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("agents: invalid flags")
	}
	if *help {
		printAgentsHelp(r.Stdout)
		return 0
	}
	m, code, ok := r.loadConfig(config.Flags{ConfigPath: *configPath, PartiesDir: *partiesDir})
	if !ok {
		return code
	}

	table, err := agents.Scan(m.PartiesDir)
	if err != nil {
		return reportError(r.Stderr, err)
	}
	list := table.Agents()
	if *jsonOut {
		if list == nil {
			list = []agents.Agent{}
		}
		return r.writeJSON(list)
	}
	tw := tabwriter.NewWriter(r.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JAR\tMAIN CLASS")
	for _, a := range list {
		fmt.Fprintf(tw, "%s\t%s\n", a.Jar, a.MainClass)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(r.Stderr, codeIO+": %s\n", err.Error())
		return 1
	}
	return 0
}

func printAgentsHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  negobatch agents [--parties-dir parties] [--json]
`)
}
