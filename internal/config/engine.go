package config

import (
	"os"
	"path/filepath"
	"strings"
)

type EngineConfig struct {
	Command     []string `json:"command,omitempty"`
	RunnerJar   string   `json:"runnerJar,omitempty"`
	RequestFile string   `json:"requestFile,omitempty"`
	ResultFile  string   `json:"resultFile,omitempty"`
	// Workdir is where the request and result files live; empty means the
	// current directory.
	Workdir string `json:"workdir,omitempty"`
}

// DefaultEngineCommand runs the GeniusWeb simple runner with every agent jar
// on the classpath.
func DefaultEngineCommand(runnerJar string, partiesDir string, requestFile string) []string {
	classpath := runnerJar + string(os.PathListSeparator) + filepath.Join(partiesDir, "*")
	return []string{"java", "-cp", classpath, "geniusweb.simplerunner.NegoRunner", requestFile}
}

// ParseCommand splits a whitespace separated argv. Quoting is not supported;
// use the project config's command list for arguments containing spaces.
func ParseCommand(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
