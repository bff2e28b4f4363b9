// Package redact scrubs credentials from engine output before it is logged
// or persisted.
package redact

import (
	"regexp"
	"strings"
)

type Applied struct {
	Names []string
}

var rules = []struct {
	name string
	re   *regexp.Regexp
	repl string
}{
	{"private_key", regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`), "[REDACTED:PRIVATE_KEY]"},
	{"aws_access_key_id", regexp.MustCompile(`\b(?:AKIA|ASIA)[A-Z0-9]{16}\b`), "[REDACTED:AWS_ACCESS_KEY_ID]"},
	{"bearer_token", regexp.MustCompile(`(?i)(authorization:\s*bearer\s+)[A-Za-z0-9._~+/=-]{8,}`), "${1}[REDACTED:BEARER_TOKEN]"},
	{"secret_assignment", regexp.MustCompile(`(?i)\b((?:secret[_-]?key|password|passwd|token)\s*[=:]\s*)[^\s"',;]{4,}`), "${1}[REDACTED:SECRET]"},
}

// Text redacts known credential shapes and every literal in secrets.
// Empty and very short literals are ignored to avoid mangling output.
func Text(s string, secrets ...string) (string, Applied) {
	applied := Applied{}
	out := s

	for _, sec := range secrets {
		if len(sec) < 4 || !strings.Contains(out, sec) {
			continue
		}
		out = strings.ReplaceAll(out, sec, "[REDACTED:CONFIGURED_SECRET]")
		if !containsName(applied.Names, "configured_secret") {
			applied.Names = append(applied.Names, "configured_secret")
		}
	}
	for _, r := range rules {
		if r.re.MatchString(out) {
			out = r.re.ReplaceAllString(out, r.repl)
			applied.Names = append(applied.Names, r.name)
		}
	}
	return out, applied
}

func containsName(names []string, n string) bool {
	for _, v := range names {
		if v == n {
			return true
		}
	}
	return false
}
