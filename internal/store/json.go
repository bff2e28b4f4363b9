package store

import (
	"bytes"
	"encoding/json"
	"os"
)

// EncodeJSONIndent renders v the way every negobatch artifact is written:
// two-space indent, no HTML escaping, trailing newline.
func EncodeJSONIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteJSONAtomic(path string, v any) error {
	return WriteJSONAtomicPerm(path, v, 0o644)
}

func WriteJSONAtomicPerm(path string, v any, perm os.FileMode) error {
	b, err := EncodeJSONIndent(v)
	if err != nil {
		return err
	}
	return WriteFileAtomicPerm(path, b, perm)
}

// ReadJSON decodes path into v with json.Number preserved for numeric values.
func ReadJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(v)
}
