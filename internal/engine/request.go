package engine

import (
	"github.com/marcohefti/negobatch/internal/settings"
)

// Request schema variants the engine dispatches on.
const (
	KeySAOPSettings  = "SAOPSettings"
	KeyLearnSettings = "LearnSettings"
)

// Request is the engine settings document for one session. Exactly one of the
// two fields is set; the JSON form is a single-key object.
type Request struct {
	SAOP  *SessionSettings `json:"SAOPSettings,omitempty"`
	Learn *SessionSettings `json:"LearnSettings,omitempty"`
}

type SessionSettings struct {
	Participants []Participant `json:"participants"`
	Deadline     Deadline      `json:"deadline"`
}

type Participant struct {
	TeamInfo TeamInfo `json:"TeamInfo"`
}

type TeamInfo struct {
	Parties []PartyWithProfile `json:"parties"`
}

type PartyWithProfile struct {
	Party   PartyRef `json:"party"`
	Profile string   `json:"profile"`
}

type PartyRef struct {
	PartyRef   string         `json:"partyref"`
	Parameters map[string]any `json:"parameters"`
}

type Deadline struct {
	DeadlineTime DeadlineTime `json:"deadlinetime"`
}

type DeadlineTime struct {
	DurationMs int64 `json:"durationms"`
}

// Settings returns whichever variant is set.
func (r Request) Settings() *SessionSettings {
	if r.SAOP != nil {
		return r.SAOP
	}
	return r.Learn
}

// Build turns a validated session into its engine request. It trusts its input.
func Build(s settings.Session) Request {
	participants := make([]Participant, 0, len(s.Parties))
	for _, p := range s.Parties {
		participants = append(participants, Participant{
			TeamInfo: TeamInfo{Parties: []PartyWithProfile{{
				Party: PartyRef{
					PartyRef:   "classpath:" + p.Ref,
					Parameters: p.Parameters.Map(),
				},
				Profile: p.Profile,
			}}},
		})
	}
	ss := &SessionSettings{
		Participants: participants,
		Deadline:     Deadline{DeadlineTime: DeadlineTime{DurationMs: s.DeadlineSeconds * 1000}},
	}
	if s.Mode == settings.ModeLearn {
		return Request{Learn: ss}
	}
	return Request{SAOP: ss}
}

// BuildAll compiles every session of a batch, in order.
func BuildAll(b settings.Batch) []Request {
	out := make([]Request, 0, len(b.Sessions))
	for _, s := range b.Sessions {
		out = append(out, Build(s))
	}
	return out
}
