// Package anonymize hides sensitive file paths from the external engine.
//
// A Map hands out one opaque token per distinct path for the lifetime of a
// batch. The engine only ever sees tokens; once the last session is done,
// Restore moves every artifact the engine wrote under a token back to the path
// the token stands for.
package anonymize

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/marcohefti/negobatch/internal/store"
)

type Map struct {
	toToken  map[string]string
	toPath   map[string]string
	order    []string
	newToken func() string
}

type Entry struct {
	Token string `json:"token"`
	Path  string `json:"path"`
}

func NewMap() *Map {
	return NewMapWithGenerator(uuid.NewString)
}

// NewMapWithGenerator is NewMap with a custom token source. A generator that
// repeats itself is tolerated: TokenFor retries until the token is unused.
func NewMapWithGenerator(gen func() string) *Map {
	if gen == nil {
		gen = uuid.NewString
	}
	return &Map{
		toToken:  map[string]string{},
		toPath:   map[string]string{},
		newToken: gen,
	}
}

// TokenFor returns the token already issued for path, or issues a fresh one.
func (m *Map) TokenFor(path string) string {
	if tok, ok := m.toToken[path]; ok {
		return tok
	}
	tok := m.newToken()
	for tok == "" || m.toPath[tok] != "" {
		tok = m.newToken()
	}
	m.toToken[path] = tok
	m.toPath[tok] = path
	m.order = append(m.order, path)
	return tok
}

// Original reports the path a token was issued for.
func (m *Map) Original(token string) (string, bool) {
	p, ok := m.toPath[token]
	return p, ok
}

func (m *Map) Len() int { return len(m.order) }

// Entries lists the mapping in first-seen order.
func (m *Map) Entries() []Entry {
	out := make([]Entry, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, Entry{Token: m.toToken[p], Path: p})
	}
	return out
}

type RestoreResult struct {
	ScratchDir string  `json:"scratchDir"`
	Restored   []Entry `json:"restored,omitempty"`
	// Skipped counts entries whose names are not tokens of this map.
	Skipped int `json:"skipped"`
}

// Restore moves every entry of scratchDir named after an issued token to its
// original path. Relative originals are placed under destRoot when it is set.
// Entries with unknown names are left alone. A missing scratchDir is not an
// error: the engine simply wrote nothing.
func (m *Map) Restore(scratchDir string, destRoot string) (RestoreResult, error) {
	res := RestoreResult{ScratchDir: scratchDir}
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, err
	}

	var errs []error
	for _, e := range entries {
		orig, ok := m.toPath[e.Name()]
		if !ok {
			res.Skipped++
			continue
		}
		dst := orig
		if destRoot != "" && !filepath.IsAbs(orig) {
			dst = filepath.Join(destRoot, orig)
		}
		if err := store.MoveFile(filepath.Join(scratchDir, e.Name()), dst); err != nil {
			errs = append(errs, fmt.Errorf("restore %s -> %s: %w", e.Name(), dst, err))
			continue
		}
		res.Restored = append(res.Restored, Entry{Token: e.Name(), Path: dst})
	}
	return res, errors.Join(errs...)
}
