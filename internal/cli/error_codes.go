package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/marcohefti/negobatch/internal/batch"
	"github.com/marcohefti/negobatch/internal/codes"
	"github.com/marcohefti/negobatch/internal/settings"
)

const (
	codeUsage          = codes.Usage
	codeIO             = codes.IO
	codeConfig         = codes.Config
	codeProfileInvalid = codes.ProfileInvalid
	codeScore          = codes.Score
)

// exitCodeFor maps a stable code to the process exit code: 2 for problems the
// operator fixes in their inputs, 1 for runtime failures.
func exitCodeFor(code string) int {
	switch code {
	case codes.Usage, codes.Config, codes.SettingsInvalid, codes.DuplicateAgent, codes.AgentManifest:
		return 2
	default:
		return 1
	}
}

// reportError prints "<CODE>: <message>" and, for rejected settings, one
// line per finding.
func reportError(w io.Writer, err error) int {
	code := batch.CodeOf(err)
	fmt.Fprintf(w, "%s: %s\n", code, err.Error())
	var ve *settings.ValidationError
	if errors.As(err, &ve) && len(ve.Findings) > 1 {
		for _, f := range ve.Findings {
			fmt.Fprintf(w, "  %s\n", f.String())
		}
	}
	return exitCodeFor(code)
}
