package codes

import "fmt"

// Stable error codes. They appear on stderr as "<CODE>: <message>" and in
// JSON findings, so never rename an existing value.
const (
	Usage  = "NB_E_USAGE"
	IO     = "NB_E_IO"
	Config = "NB_E_CONFIG"

	SettingsInvalid = "NB_E_SETTINGS_INVALID"
	DuplicateAgent  = "NB_E_DUPLICATE_AGENT"
	AgentManifest   = "NB_E_AGENT_MANIFEST"

	EngineSpawn   = "NB_E_ENGINE_SPAWN"
	EngineExit    = "NB_E_ENGINE_EXIT"
	ResultMissing = "NB_E_RESULT_MISSING"
	ResultInvalid = "NB_E_RESULT_INVALID"

	ProfileInvalid = "NB_E_PROFILE_INVALID"
	Score          = "NB_E_SCORE"

	LockTimeout = "NB_E_LOCK_TIMEOUT"
	Publish     = "NB_E_PUBLISH"
	Restore     = "NB_E_RESTORE"
)

// EngineExitCode is the per-exit-code variant of EngineExit used in batch summaries.
func EngineExitCode(exitCode int) string {
	return fmt.Sprintf("%s_%d", EngineExit, exitCode)
}

type Info struct {
	Code      string
	Summary   string
	Retryable bool
}

// All lists every code with a short operator-facing summary.
func All() []Info {
	return []Info{
		{Code: Usage, Summary: "Invalid CLI usage or flags."},
		{Code: IO, Summary: "Filesystem read/write failure."},
		{Code: Config, Summary: "Invalid negobatch configuration (flags, env, or negobatch.config.json)."},
		{Code: SettingsInvalid, Summary: "Batch settings failed schema or semantic validation; no session was run."},
		{Code: DuplicateAgent, Summary: "Two agent jars declare the same package classpath."},
		{Code: AgentManifest, Summary: "Agent jar is missing META-INF/MANIFEST.MF or a Main-Class entry."},
		{Code: EngineSpawn, Summary: "External negotiation engine could not be started."},
		{Code: EngineExit, Summary: "External negotiation engine exited non-zero; the batch was aborted.", Retryable: true},
		{Code: ResultMissing, Summary: "Engine produced no result file for the session."},
		{Code: ResultInvalid, Summary: "Engine result file is not valid JSON or misses SAOPState."},
		{Code: ProfileInvalid, Summary: "Profile could not be loaded (format, weights, or value utilities)."},
		{Code: Score, Summary: "A bid references an issue or value absent from the profile."},
		{Code: LockTimeout, Summary: "Another batch holds the working directory lock."},
		{Code: Publish, Summary: "Report upload to the object store failed.", Retryable: true},
		{Code: Restore, Summary: "Anonymized artifact could not be moved back to its original path."},
	}
}
