// Package utility scores bids against linear additive negotiation profiles.
package utility

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Issue struct {
	Weight float64            `json:"weight" yaml:"weight"`
	Values map[string]float64 `json:"values" yaml:"values"`
}

// Profile is read-only once loaded.
type Profile struct {
	Name   string           `json:"name,omitempty"`
	Issues map[string]Issue `json:"issues"`

	totalWeight float64
}

// ProfileError means a profile document cannot be used for scoring.
type ProfileError struct {
	Source string
	Reason string
}

func (e *ProfileError) Error() string {
	if e.Source == "" {
		return "invalid profile: " + e.Reason
	}
	return fmt.Sprintf("invalid profile %s: %s", e.Source, e.Reason)
}

// ResolveRef turns a profile reference (a file: URI or a plain path) into a
// filesystem path. Relative paths are resolved against baseDir.
func ResolveRef(ref string, baseDir string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", &ProfileError{Reason: "empty profile reference"}
	}
	p := ref
	if rest, ok := strings.CutPrefix(ref, "file:"); ok {
		// "file:profiles/a.json" is relative, "file:///abs/a.json" absolute.
		p = rest
		if strings.HasPrefix(p, "//") {
			p = strings.TrimPrefix(p, "//")
		}
	} else if u, err := url.Parse(ref); err == nil && len(u.Scheme) > 1 {
		return "", &ProfileError{Source: ref, Reason: fmt.Sprintf("unsupported profile scheme %q", u.Scheme)}
	}
	if !filepath.IsAbs(p) && baseDir != "" {
		p = filepath.Join(baseDir, p)
	}
	return filepath.FromSlash(p), nil
}

// Load reads the profile behind ref.
func Load(ref string, baseDir string) (Profile, error) {
	path, err := ResolveRef(ref, baseDir)
	if err != nil {
		return Profile{}, err
	}
	return LoadFile(path)
}

func LoadFile(path string) (Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, &ProfileError{Source: path, Reason: err.Error()}
	}
	var p Profile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		p, err = parseYAML(raw)
	default:
		p, err = parseJSON(raw)
	}
	if err != nil {
		return Profile{}, &ProfileError{Source: path, Reason: err.Error()}
	}
	if err := p.init(); err != nil {
		return Profile{}, &ProfileError{Source: path, Reason: err.Error()}
	}
	return p, nil
}

// New builds a profile from issues directly.
func New(name string, issues map[string]Issue) (Profile, error) {
	p := Profile{Name: name, Issues: issues}
	if err := p.init(); err != nil {
		return Profile{}, &ProfileError{Source: name, Reason: err.Error()}
	}
	return p, nil
}

type linearAdditiveDoc struct {
	Space *linearAdditiveSpace `json:"LinearAdditiveUtilitySpace"`
}

type linearAdditiveSpace struct {
	Name           string                    `json:"name"`
	IssueWeights   map[string]float64        `json:"issueWeights"`
	IssueUtilities map[string]issueUtilities `json:"issueUtilities"`
}

type issueUtilities struct {
	DiscreteUtils     *valueSetUtilities `json:"discreteutils"`
	DiscreteValueSet  *valueSetUtilities `json:"DiscreteValueSetUtilities"`
	NumberUtils       json.RawMessage    `json:"numberutils"`
	NumberValueSetUtl json.RawMessage    `json:"NumberValueSetUtilities"`
}

type valueSetUtilities struct {
	ValueUtilities map[string]float64 `json:"valueUtilities"`
}

func parseJSON(raw []byte) (Profile, error) {
	var doc linearAdditiveDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Profile{}, err
	}
	space := doc.Space
	if space == nil {
		space = &linearAdditiveSpace{}
		if err := json.NewDecoder(bytes.NewReader(raw)).Decode(space); err != nil {
			return Profile{}, err
		}
		if space.IssueWeights == nil && space.IssueUtilities == nil {
			return Profile{}, fmt.Errorf("expected LinearAdditiveUtilitySpace with issueWeights and issueUtilities")
		}
	}

	p := Profile{Name: space.Name, Issues: map[string]Issue{}}
	for name, u := range space.IssueUtilities {
		vu := u.DiscreteUtils
		if vu == nil {
			vu = u.DiscreteValueSet
		}
		if vu == nil {
			if len(u.NumberUtils) > 0 || len(u.NumberValueSetUtl) > 0 {
				return Profile{}, fmt.Errorf("issue %q: numeric value utilities are not supported", name)
			}
			return Profile{}, fmt.Errorf("issue %q: missing discrete value utilities", name)
		}
		w, ok := space.IssueWeights[name]
		if !ok {
			return Profile{}, fmt.Errorf("issue %q has utilities but no weight", name)
		}
		p.Issues[name] = Issue{Weight: w, Values: vu.ValueUtilities}
	}
	for name := range space.IssueWeights {
		if _, ok := p.Issues[name]; !ok {
			return Profile{}, fmt.Errorf("issue %q has a weight but no utilities", name)
		}
	}
	return p, nil
}

type yamlDoc struct {
	Name   string           `yaml:"name"`
	Issues map[string]Issue `yaml:"issues"`
}

func parseYAML(raw []byte) (Profile, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var doc yamlDoc
	if err := dec.Decode(&doc); err != nil {
		return Profile{}, err
	}
	return Profile{Name: doc.Name, Issues: doc.Issues}, nil
}

func (p *Profile) init() error {
	if len(p.Issues) == 0 {
		return fmt.Errorf("profile has no issues")
	}
	total := 0.0
	for _, name := range p.IssueNames() {
		is := p.Issues[name]
		if math.IsNaN(is.Weight) || math.IsInf(is.Weight, 0) || is.Weight < 0 {
			return fmt.Errorf("issue %q: weight must be a finite number >= 0, got %v", name, is.Weight)
		}
		if len(is.Values) == 0 {
			return fmt.Errorf("issue %q: no value utilities", name)
		}
		for v, u := range is.Values {
			if math.IsNaN(u) || u < 0 || u > 1 {
				return fmt.Errorf("issue %q value %q: utility must be in [0,1], got %v", name, v, u)
			}
		}
		total += is.Weight
	}
	if total <= 0 {
		return fmt.Errorf("issue weights sum to %v; at least one weight must be positive", total)
	}
	p.totalWeight = total
	return nil
}

// IssueNames lists the profile's issues sorted by name.
func (p Profile) IssueNames() []string {
	out := make([]string, 0, len(p.Issues))
	for name := range p.Issues {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (p Profile) TotalWeight() float64 { return p.totalWeight }
