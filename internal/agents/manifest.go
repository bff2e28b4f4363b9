package agents

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

const manifestPath = "META-INF/MANIFEST.MF"

// ManifestError means a jar cannot be used as an agent package.
type ManifestError struct {
	Jar    string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("agent jar %s: %s", e.Jar, e.Reason)
}

func readMainClass(jarPath string) (string, error) {
	zr, err := zip.OpenReader(jarPath)
	if err != nil {
		return "", &ManifestError{Jar: jarPath, Reason: "not a readable jar: " + err.Error()}
	}
	defer func() { _ = zr.Close() }()

	var mf *zip.File
	for _, f := range zr.File {
		if f.Name == manifestPath {
			mf = f
			break
		}
	}
	if mf == nil {
		return "", &ManifestError{Jar: jarPath, Reason: "missing " + manifestPath}
	}
	rc, err := mf.Open()
	if err != nil {
		return "", &ManifestError{Jar: jarPath, Reason: err.Error()}
	}
	defer func() { _ = rc.Close() }()
	raw, err := io.ReadAll(io.LimitReader(rc, 1<<20))
	if err != nil {
		return "", &ManifestError{Jar: jarPath, Reason: err.Error()}
	}

	mainClass := parseManifest(string(raw))["Main-Class"]
	if mainClass == "" {
		return "", &ManifestError{Jar: jarPath, Reason: "manifest has no Main-Class"}
	}
	return mainClass, nil
}

// parseManifest reads the main section of a jar manifest. Lines starting with a
// single space continue the previous value.
func parseManifest(s string) map[string]string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	out := map[string]string{}
	last := ""
	for _, line := range strings.Split(s, "\n") {
		if line == "" {
			// Blank line ends the main section.
			if len(out) > 0 {
				break
			}
			continue
		}
		if strings.HasPrefix(line, " ") {
			if last != "" {
				out[last] += line[1:]
			}
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			last = ""
			continue
		}
		last = strings.TrimSpace(k)
		out[last] = strings.TrimSpace(v)
	}
	return out
}

// packageOf drops the class name: "a.b.MyParty" -> "a.b".
func packageOf(mainClass string) string {
	i := strings.LastIndex(mainClass, ".")
	if i < 0 {
		return mainClass
	}
	return mainClass[:i]
}
