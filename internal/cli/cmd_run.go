package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/marcohefti/negobatch/internal/batch"
	"github.com/marcohefti/negobatch/internal/config"
	"github.com/marcohefti/negobatch/internal/engine"
	"github.com/marcohefti/negobatch/internal/publish"
)

func (r Runner) runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	flags := workspaceFlags(fs)
	fs.StringVar(&flags.ScratchDir, "scratch-dir", "", "directory the engine writes anonymized artifacts to (default <tmp>/geniusweb)")
	fs.StringVar(&flags.RestoreRoot, "restore-root", "", "restore relative artifacts under this dir instead of their original path")
	fs.StringVar(&flags.EngineCommand, "engine-command", "", "engine argv, whitespace separated (default java simplerunner)")
	fs.StringVar(&flags.RunnerJar, "runner-jar", "", "simplerunner jar for the default engine command")
	fs.StringVar(&flags.Workdir, "workdir", "", "engine working directory holding settings.json/results.json (default .)")
	progressPath := fs.String("progress-jsonl", "", "progress event stream path, or - for stderr (default <outRoot>/runs/<runId>/progress.jsonl)")
	logJSON := fs.Bool("log-json", false, "emit logs as JSON on stderr")
	jsonOut := fs.Bool("json", false, "print the batch summary as JSON")
	help := fs.Bool("help", false, "show help")

	if err := fs.Parse(args); err != nil {
		return r.failUsage("run: invalid flags")
	}
	if *help {
		printRunHelp(r.Stdout)
		return 0
	}
	if fs.NArg() > 0 {
		printRunHelp(r.Stderr)
		return r.failUsage("run: unexpected arguments")
	}

	m, code, ok := r.loadConfig(*flags)
	if !ok {
		return code
	}
	pub, err := publish.New(m.Publish)
	if err != nil {
		fmt.Fprintf(r.Stderr, codeConfig+": publish: %s\n", err.Error())
		return 2
	}

	// Engine chatter must not corrupt --json output.
	engineOut := r.Stdout
	if *jsonOut {
		engineOut = r.Stderr
	}
	var eng engine.Engine
	if r.NewEngine != nil {
		eng = r.NewEngine(m, engineOut, r.Stderr)
	} else {
		eng = processEngine(m, engineOut, r.Stderr)
	}

	var progress *batch.ProgressEmitter
	if *progressPath != "" {
		progress = batch.NewProgressEmitter(*progressPath, r.Stderr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runner := batch.Runner{
		SettingsPath:   m.SettingsPath,
		PartiesDir:     m.PartiesDir,
		ProfilesDir:    m.ProfilesDir,
		ResultsDir:     m.ResultsDir,
		OutRoot:        m.OutRoot,
		ScratchDir:     m.ScratchDir,
		RestoreRoot:    m.RestoreRoot,
		ProfileBaseDir: m.Engine.Workdir,
		Engine:         eng,
		Publisher:      pub,
		Secrets:        []string{m.Publish.SecretKey, m.Publish.AccessKey},
		Logger:         newLogger(r.Stderr, *logJSON),
		Progress:       progress,
		Now:            r.Now,
	}
	sum, err := runner.Run(ctx)
	if *jsonOut && sum.RunID != "" {
		if code := r.writeJSON(sum); code != 0 {
			return code
		}
	}
	if err != nil {
		return reportError(r.Stderr, err)
	}
	if !*jsonOut {
		fmt.Fprintf(r.Stdout, "ok: %d session(s), reports in %s (run %s)\n", len(sum.Sessions), m.ResultsDir, sum.RunID)
	}
	return 0
}

func processEngine(m config.Merged, stdout, stderr io.Writer) engine.Engine {
	return engine.ProcessEngine{
		Command:     m.Engine.Command,
		Dir:         m.Engine.Workdir,
		RequestFile: m.Engine.RequestFile,
		ResultFile:  m.Engine.ResultFile,
		Stdout:      stdout,
		Stderr:      stderr,
	}
}

func printRunHelp(w io.Writer) {
	fmt.Fprint(w, `Usage:
  negobatch run [--settings settings.yaml] [--parties-dir parties] [--profiles-dir profiles] [--results-dir results] [--out-root .negobatch] [--scratch-dir <dir>] [--restore-root <dir>] [--engine-command <argv>] [--runner-jar <jar>] [--workdir <dir>] [--progress-jsonl <path|->] [--log-json] [--json]

Sessions run one at a time, in order. The first failing session aborts the
batch; anonymized artifacts are restored either way.
`)
}
