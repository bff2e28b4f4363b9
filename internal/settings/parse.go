package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile decodes a batch settings file into its raw document. Shape checks
// are left to Validator so every problem is reported as a Finding.
func ParseFile(path string) (any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return decodeJSON(raw)
	default:
		return decodeYAML(raw)
	}
}

func decodeYAML(raw []byte) (any, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid settings yaml: %w", err)
	}
	return doc, nil
}

func decodeJSON(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid settings json: %w", err)
	}
	return doc, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

// MaxDeadlineSeconds keeps the engine's millisecond deadline within int64.
const MaxDeadlineSeconds = math.MaxInt64 / 1000

// asPositiveInt accepts integral seconds in [1, MaxDeadlineSeconds] from
// either decoder.
func asPositiveInt(v any) (int64, bool) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case uint64:
		if x > MaxDeadlineSeconds {
			return 0, false
		}
		n = int64(x)
	case float64:
		if x != math.Trunc(x) || x < 1 || x > MaxDeadlineSeconds {
			return 0, false
		}
		n = int64(x)
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, false
		}
		n = i
	default:
		return 0, false
	}
	return n, n > 0 && n <= MaxDeadlineSeconds
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
