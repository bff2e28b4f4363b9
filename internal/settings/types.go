package settings

import "fmt"

type Mode string

const (
	ModeNegotiation Mode = "negotiation"
	ModeLearn       Mode = "learn"
)

// LearnProfilePlaceholder is the profile URI every learn-mode party receives;
// the engine serves a stub profile for it.
const LearnProfilePlaceholder = "http://prof1"

// Wire names of the recognized party parameters.
const (
	ParamPersistentState = "persistentstate"
	ParamNegotiationData = "negotiationdata"
)

func (m Mode) Valid() bool {
	return m == ModeNegotiation || m == ModeLearn
}

// Batch is a validated, anonymized batch in authored order.
type Batch struct {
	Sessions []Session `json:"sessions"`
}

// Session is one validated run. Mode discriminates how Parties were checked:
// negotiation sessions have exactly two parties with file: profiles, learn
// sessions any number of parties on the placeholder profile.
type Session struct {
	Index           int     `json:"index"`
	Mode            Mode    `json:"mode"`
	DeadlineSeconds int64   `json:"deadlineSeconds"`
	Parties         []Party `json:"parties"`
}

type Party struct {
	// PartyID is the agent jar reference as authored.
	PartyID string `json:"partyId"`
	// Ref is the class the engine loads for this party.
	Ref string `json:"ref"`
	// Profile is the rewritten profile URI handed to the engine.
	Profile string `json:"profile"`
	// ProfileSource is the profile reference as authored.
	ProfileSource string      `json:"profileSource"`
	Parameters    *Parameters `json:"parameters,omitempty"`
}

// Parameters holds anonymized party parameters. Empty fields were absent.
type Parameters struct {
	PersistentState string   `json:"persistentstate,omitempty"`
	NegotiationData []string `json:"negotiationdata,omitempty"`
	hasData         bool
}

// Map renders the parameters as the engine expects them. A nil receiver
// yields an empty map.
func (p *Parameters) Map() map[string]any {
	out := map[string]any{}
	if p == nil {
		return out
	}
	if p.PersistentState != "" {
		out[ParamPersistentState] = p.PersistentState
	}
	if p.hasData || len(p.NegotiationData) > 0 {
		data := make([]any, 0, len(p.NegotiationData))
		for _, tok := range p.NegotiationData {
			data = append(data, tok)
		}
		out[ParamNegotiationData] = data
	}
	return out
}

// Finding is one violated rule, addressed by its path in the settings file.
type Finding struct {
	Session int    `json:"session"`
	Party   int    `json:"party"`
	Path    string `json:"path"`
	Rule    string `json:"rule"`
	Actual  any    `json:"actual,omitempty"`
	Message string `json:"message"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s (rule=%s)", f.Path, f.Message, f.Rule)
}

// ValidationError carries every finding of a rejected batch.
type ValidationError struct {
	Findings []Finding
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Findings) == 0 {
		return "invalid settings"
	}
	if len(e.Findings) == 1 {
		return "invalid settings: " + e.Findings[0].String()
	}
	return fmt.Sprintf("invalid settings: %s (and %d more)", e.Findings[0].String(), len(e.Findings)-1)
}

// HasRule reports whether any finding violates rule.
func (e *ValidationError) HasRule(rule string) bool {
	if e == nil {
		return false
	}
	for _, f := range e.Findings {
		if f.Rule == rule {
			return true
		}
	}
	return false
}
