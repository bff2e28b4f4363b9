// Package agents builds the identifier-resolution table from packaged agents.
package agents

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

type Agent struct {
	// Jar is the jar path as settings refer to it: "<partiesDir>/<file>" in slash form.
	Jar       string `json:"jar"`
	MainClass string `json:"mainClass"`
	Package   string `json:"package"`
}

type Table struct {
	byKey  map[string]Agent
	agents []Agent
}

type Conflict struct {
	Package string   `json:"package"`
	Jars    []string `json:"jars"`
}

// DuplicateError lists every package classpath declared by more than one jar.
type DuplicateError struct {
	Conflicts []Conflict
}

func (e *DuplicateError) Error() string {
	var b strings.Builder
	for i, c := range e.Conflicts {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "duplicate agent package classpath %s in: %s", c.Package, strings.Join(c.Jars, ", "))
	}
	b.WriteString(" (agent jars must not share package classpaths)")
	return b.String()
}

// Scan reads every *.jar directly under dir.
func Scan(dir string) (*Table, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var found []Agent
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jar") {
			continue
		}
		full := filepath.Join(dir, e.Name())
		mainClass, err := readMainClass(full)
		if err != nil {
			return nil, err
		}
		found = append(found, Agent{
			Jar:       filepath.ToSlash(full),
			MainClass: mainClass,
			Package:   packageOf(mainClass),
		})
	}
	return NewTable(found)
}

// NewTable indexes agents by jar path and bare file name, rejecting shared packages.
func NewTable(list []Agent) (*Table, error) {
	byPkg := map[string][]string{}
	for _, a := range list {
		byPkg[a.Package] = append(byPkg[a.Package], a.Jar)
	}
	var conflicts []Conflict
	for pkg, jars := range byPkg {
		if len(jars) > 1 {
			sort.Strings(jars)
			conflicts = append(conflicts, Conflict{Package: pkg, Jars: jars})
		}
	}
	if len(conflicts) > 0 {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Package < conflicts[j].Package })
		return nil, &DuplicateError{Conflicts: conflicts}
	}

	t := &Table{byKey: map[string]Agent{}}
	for _, a := range list {
		t.agents = append(t.agents, a)
		t.byKey[path.Clean(a.Jar)] = a
		t.byKey[path.Base(a.Jar)] = a
	}
	sort.Slice(t.agents, func(i, j int) bool { return t.agents[i].Jar < t.agents[j].Jar })
	return t, nil
}

// Resolve maps a settings party id to the class the engine loads.
func (t *Table) Resolve(partyID string) (string, bool) {
	if t == nil {
		return "", false
	}
	a, ok := t.byKey[path.Clean(filepath.ToSlash(strings.TrimSpace(partyID)))]
	if !ok {
		return "", false
	}
	return a.MainClass, true
}

func (t *Table) Agents() []Agent {
	if t == nil {
		return nil
	}
	out := make([]Agent, len(t.agents))
	copy(out, t.agents)
	return out
}
