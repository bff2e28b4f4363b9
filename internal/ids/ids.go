package ids

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	reInvalid = regexp.MustCompile(`[^a-z0-9-]+`)
	reDashes  = regexp.MustCompile(`-+`)
	reRunID   = regexp.MustCompile(`^[0-9]{8}-[0-9]{6}Z-[0-9a-f]{6}$`)
)

// NewRunID names one batch run: YYYYMMDD-HHMMSSZ-<hex6>.
func NewRunID(now time.Time) (string, error) {
	prefix := now.UTC().Format("20060102-150405Z")

	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return prefix + "-" + hex.EncodeToString(b[:]), nil
}

func IsValidRunID(s string) bool {
	return reRunID.MatchString(strings.TrimSpace(s))
}

func SanitizeComponent(s string) string {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.ReplaceAll(v, "_", "-")
	v = reInvalid.ReplaceAllString(v, "-")
	v = reDashes.ReplaceAllString(v, "-")
	v = strings.Trim(v, "-")
	return v
}

// ReportFileName is "<index+1 zero-padded to 4>_<mode>.json" for a 0-based
// session index.
func ReportFileName(index int, mode string) string {
	if index < 0 {
		index = 0
	}
	m := SanitizeComponent(mode)
	if m == "" {
		m = "session"
	}
	return fmt.Sprintf("%04d_%s.json", index+1, m)
}
