package settings

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

// ProfileSet is the set of profile files a negotiation party may reference.
type ProfileSet struct {
	lookup map[string]bool
	files  []string
}

// DiscoverProfiles collects every profile file below dir. A file is known both
// as "<dir>/<rel>" in slash form and by its absolute path.
func DiscoverProfiles(dir string) (ProfileSet, error) {
	var set ProfileSet
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isProfileFile(p) {
			return nil
		}
		set.Add(p)
		return nil
	})
	if err != nil {
		return ProfileSet{}, err
	}
	return set, nil
}

func NewProfileSet(paths ...string) ProfileSet {
	var set ProfileSet
	for _, p := range paths {
		set.Add(p)
	}
	return set
}

func (s *ProfileSet) Add(p string) {
	if s.lookup == nil {
		s.lookup = map[string]bool{}
	}
	key := path.Clean(filepath.ToSlash(p))
	if s.lookup[key] {
		return
	}
	s.lookup[key] = true
	s.files = append(s.files, key)
	if abs, err := filepath.Abs(p); err == nil {
		s.lookup[filepath.ToSlash(abs)] = true
	}
}

func (s ProfileSet) Contains(ref string) bool {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return false
	}
	if s.lookup[path.Clean(filepath.ToSlash(ref))] {
		return true
	}
	if abs, err := filepath.Abs(ref); err == nil {
		return s.lookup[filepath.ToSlash(abs)]
	}
	return false
}

func (s ProfileSet) Len() int { return len(s.files) }

func isProfileFile(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
