package contract

import "github.com/marcohefti/negobatch/internal/codes"

type Contract struct {
	Name                  string     `json:"name"`
	Version               string     `json:"version"`
	ArtifactLayoutVersion int        `json:"artifactLayoutVersion"`
	ProgressSchemaVersion int        `json:"progressSchemaVersion"`
	Artifacts             []Artifact `json:"artifacts"`
	Events                []Event    `json:"events"`
	Commands              []Command  `json:"commands"`
	Errors                []Error    `json:"errors"`
}

type Artifact struct {
	ID             string   `json:"id"`
	Kind           string   `json:"kind"` // json|jsonl
	SchemaVersions []int    `json:"schemaVersions"`
	Required       bool     `json:"required"`
	PathPattern    string   `json:"pathPattern"`
	RequiredFields []string `json:"requiredFields"`
}

type Event struct {
	Stream         string   `json:"stream"`
	Kinds          []string `json:"kinds"`
	SchemaVersions []int    `json:"schemaVersions"`
	RequiredFields []string `json:"requiredFields"`
}

type Command struct {
	ID      string `json:"id"`
	Usage   string `json:"usage"`
	Summary string `json:"summary"`
}

type Error struct {
	Code      string `json:"code"`
	Summary   string `json:"summary"`
	Retryable bool   `json:"retryable"`
}

func Build(version string) Contract {
	errs := make([]Error, 0, len(codes.All()))
	for _, c := range codes.All() {
		errs = append(errs, Error{Code: c.Code, Summary: c.Summary, Retryable: c.Retryable})
	}
	return Contract{
		Name:                  "negobatch",
		Version:               version,
		ArtifactLayoutVersion: 1,
		ProgressSchemaVersion: 1,
		Artifacts: []Artifact{
			{
				ID:             "report",
				Kind:           "json",
				SchemaVersions: []int{1},
				Required:       true,
				PathPattern:    "<resultsDir>/<NNNN>_<negotiation|learn>.json",
				RequiredFields: []string{},
			},
			{
				ID:             "summary.json",
				Kind:           "json",
				SchemaVersions: []int{1},
				Required:       true,
				PathPattern:    ".negobatch/runs/<runId>/summary.json",
				RequiredFields: []string{"schemaVersion", "runId", "settingsPath", "status", "startedAt", "finishedAt", "sessions"},
			},
			{
				ID:             "progress.jsonl",
				Kind:           "jsonl",
				SchemaVersions: []int{1},
				Required:       false,
				PathPattern:    ".negobatch/runs/<runId>/progress.jsonl",
				RequiredFields: []string{},
			},
			{
				ID:             "engine.request",
				Kind:           "json",
				SchemaVersions: []int{1},
				Required:       true,
				PathPattern:    "<engine.workdir>/settings.json",
				RequiredFields: []string{"SAOPSettings|LearnSettings"},
			},
			{
				ID:             "engine.result",
				Kind:           "json",
				SchemaVersions: []int{1},
				Required:       true,
				PathPattern:    "<engine.workdir>/results.json",
				RequiredFields: []string{"SAOPState (negotiation)"},
			},
			{
				ID:             "negobatch.config.json",
				Kind:           "json",
				SchemaVersions: []int{1},
				Required:       false,
				PathPattern:    "negobatch.config.json",
				RequiredFields: []string{"schemaVersion"},
			},
		},
		Events: []Event{
			{
				Stream:         "progress.jsonl",
				Kinds:          []string{"session_start", "engine_exit", "report_written", "published", "batch_done", "batch_failed"},
				SchemaVersions: []int{1},
				RequiredFields: []string{"v", "ts", "kind", "runId"},
			},
		},
		Commands: []Command{
			{
				ID:      "init",
				Usage:   "negobatch init [--config negobatch.config.json] [--out-root .negobatch] [--results-dir results] [--json]",
				Summary: "Write the project config and create the output directories.",
			},
			{
				ID:      "run",
				Usage:   "negobatch run [--settings settings.yaml] [--parties-dir parties] [--profiles-dir profiles] [--results-dir results] [--out-root .negobatch] [--scratch-dir <dir>] [--restore-root <dir>] [--engine-command <argv>] [--workdir <dir>] [--progress-jsonl <path|->] [--json]",
				Summary: "Validate the batch, run every session through the engine in order, write one report per session.",
			},
			{
				ID:      "validate",
				Usage:   "negobatch validate [--settings settings.yaml] [--parties-dir parties] [--profiles-dir profiles] [--json]",
				Summary: "Validate the batch without running it; print every finding and the engine requests.",
			},
			{
				ID:      "score",
				Usage:   "negobatch score --profile <path|file:uri> --bid <issue=value> [--bid ...] [--json]",
				Summary: "Compute the utility of one bid under one profile.",
			},
			{
				ID:      "agents",
				Usage:   "negobatch agents [--parties-dir parties] [--json]",
				Summary: "List the identifier table built from agent jar manifests.",
			},
			{
				ID:      "doctor",
				Usage:   "negobatch doctor [--json]",
				Summary: "Check environment/config sanity (write access, config parse, engine availability).",
			},
			{
				ID:      "gc",
				Usage:   "negobatch gc [--out-root .negobatch] [--max-age-days 30] [--max-total-bytes 0] [--dry-run] [--json]",
				Summary: "Retention cleanup under .negobatch/runs (age/size; respects pinned runs).",
			},
			{
				ID:      "pin",
				Usage:   "negobatch pin --run-id <runId> [--off] [--out-root .negobatch] [--json]",
				Summary: "Pin or unpin a run so retention cleanup keeps it.",
			},
			{
				ID:      "contract",
				Usage:   "negobatch contract --json",
				Summary: "Print the negobatch surface contract (artifact layout, events, error codes).",
			},
			{
				ID:      "version",
				Usage:   "negobatch version",
				Summary: "Print version.",
			},
		},
		Errors: errs,
	}
}
