package settings

import (
	"fmt"
	"os"
	"path/filepath"
)

// Compile parses the settings file at path and validates it with v.
func Compile(path string, v *Validator) (Batch, error) {
	doc, err := ParseFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return v.Validate(doc)
}

// EngineRunsElsewhere reports whether an engine started in workdir would
// resolve relative paths differently from this process.
func EngineRunsElsewhere(workdir string) bool {
	if workdir == "" {
		return false
	}
	wd, err := os.Getwd()
	if err != nil {
		return true
	}
	abs, err := filepath.Abs(workdir)
	if err != nil {
		return true
	}
	return filepath.Clean(abs) != filepath.Clean(wd)
}
