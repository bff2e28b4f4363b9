package settings

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/marcohefti/negobatch/internal/anonymize"
)

// PartyResolver maps an authored party id to the class the engine loads.
type PartyResolver interface {
	Resolve(partyID string) (string, bool)
}

// Validator checks a raw batch and rewrites it for the engine: party ids are
// resolved, profiles rewritten to URIs, parameter paths replaced by tokens.
type Validator struct {
	Parties  PartyResolver
	Profiles ProfileSet
	// Anonymizer receives every parameter path. It is shared with the batch
	// so tokens can be restored after the last session.
	Anonymizer *anonymize.Map
	// AbsoluteProfiles rewrites relative profiles to absolute file: URIs.
	// Set it when the engine runs in another working directory than the
	// one profiles were checked from.
	AbsoluteProfiles bool
}

type sessionCheck struct {
	v        *Validator
	index    int
	findings []Finding
}

func (c *sessionCheck) fail(party int, path string, rule string, actual any, format string, args ...any) {
	c.findings = append(c.findings, Finding{
		Session: c.index,
		Party:   party,
		Path:    path,
		Rule:    rule,
		Actual:  actual,
		Message: fmt.Sprintf(format, args...),
	})
}

// Validate returns the compiled batch, or a *ValidationError listing every
// finding. Nothing may run when an error is returned.
func (v *Validator) Validate(doc any) (Batch, error) {
	if v.Parties == nil {
		return Batch{}, fmt.Errorf("settings: missing party resolver")
	}
	if v.Anonymizer == nil {
		v.Anonymizer = anonymize.NewMap()
	}
	list, ok := doc.([]any)
	if !ok {
		return Batch{}, &ValidationError{Findings: []Finding{{
			Session: -1,
			Party:   -1,
			Path:    "$",
			Rule:    RuleBatchNotSequence,
			Actual:  describe(doc),
			Message: "settings must be a sequence of sessions",
		}}}
	}

	var batch Batch
	var findings []Finding
	for i, raw := range list {
		c := &sessionCheck{v: v, index: i}
		s, ok := c.session(raw)
		findings = append(findings, c.findings...)
		if ok {
			batch.Sessions = append(batch.Sessions, s)
		}
	}
	if len(findings) > 0 {
		return Batch{}, &ValidationError{Findings: findings}
	}
	return batch, nil
}

func (c *sessionCheck) session(raw any) (Session, bool) {
	base := fmt.Sprintf("$[%d]", c.index)
	m, ok := asMap(raw)
	if !ok {
		c.fail(-1, base, RuleSessionNotMapping, describe(raw), "session must be a mapping with a single mode key")
		return Session{}, false
	}
	if len(m) != 1 {
		c.fail(-1, base, RuleSessionModeKey, sortedKeys(m), "session must have exactly one key (negotiation|learn), got %d", len(m))
		return Session{}, false
	}
	var mode Mode
	var body any
	for k, val := range m {
		mode, body = Mode(k), val
	}
	if !mode.Valid() {
		c.fail(-1, base, RuleSessionModeKey, string(mode), "unknown session mode %q (expected negotiation|learn)", mode)
		return Session{}, false
	}
	base += "." + string(mode)

	bm, ok := asMap(body)
	if !ok {
		c.fail(-1, base, RuleSessionBodyNotMap, describe(body), "session body must be a mapping")
		return Session{}, false
	}
	_, hasDeadline := bm["deadline"]
	_, hasParties := bm["parties"]
	if len(bm) != 2 || !hasDeadline || !hasParties {
		c.fail(-1, base, RuleSessionBodyFields, sortedKeys(bm), "session body must have exactly the fields deadline and parties")
		return Session{}, false
	}

	s := Session{Index: c.index, Mode: mode}
	ok = true
	if d, valid := asPositiveInt(bm["deadline"]); valid {
		s.DeadlineSeconds = d
	} else {
		c.fail(-1, base+".deadline", RuleDeadlineInvalid, bm["deadline"], "deadline must be a positive integer number of seconds")
		ok = false
	}

	parties, isList := bm["parties"].([]any)
	if !isList {
		c.fail(-1, base+".parties", RulePartiesNotSequence, describe(bm["parties"]), "parties must be a sequence")
		return Session{}, false
	}
	if mode == ModeNegotiation && len(parties) != 2 {
		c.fail(-1, base+".parties", RulePartyCount, len(parties), "negotiation sessions need exactly 2 parties, got %d", len(parties))
		return Session{}, false
	}
	for j, rawParty := range parties {
		p, partyOK := c.party(mode, j, fmt.Sprintf("%s.parties[%d]", base, j), rawParty)
		if !partyOK {
			ok = false
			continue
		}
		s.Parties = append(s.Parties, p)
	}
	return s, ok
}

func (c *sessionCheck) party(mode Mode, j int, base string, raw any) (Party, bool) {
	m, ok := asMap(raw)
	if !ok {
		c.fail(j, base, RulePartyNotMapping, describe(raw), "party must be a mapping")
		return Party{}, false
	}
	if len(m) < 2 || len(m) > 3 {
		c.fail(j, base, RulePartyFields, sortedKeys(m), "party must have 2 or 3 fields (party, profile, optional parameters), got %d", len(m))
		return Party{}, false
	}
	for _, k := range sortedKeys(m) {
		if k != "party" && k != "profile" && k != "parameters" {
			c.fail(j, base+"."+k, RulePartyFields, k, "unknown party field %q", k)
			return Party{}, false
		}
	}
	partyID, hasParty := m["party"].(string)
	if !hasParty {
		c.fail(j, base+".party", RulePartyFields, describe(m["party"]), "party must be a jar reference string")
		return Party{}, false
	}
	profile, hasProfile := m["profile"].(string)
	if !hasProfile {
		c.fail(j, base+".profile", RuleProfileInvalid, describe(m["profile"]), "profile must be a path string")
		return Party{}, false
	}

	p := Party{PartyID: partyID, ProfileSource: profile}
	ok = true
	if ref, found := c.v.Parties.Resolve(partyID); found {
		p.Ref = ref
	} else {
		c.fail(j, base+".party", RulePartyUnknown, partyID, "unknown party %q (no agent jar with that name)", partyID)
		ok = false
	}

	switch mode {
	case ModeNegotiation:
		if c.v.Profiles.Contains(profile) {
			p.Profile = c.v.profileURI(profile)
		} else {
			c.fail(j, base+".profile", RuleProfileNotFound, profile, "profile %q not found among discovered profiles", profile)
			ok = false
		}
	case ModeLearn:
		p.Profile = LearnProfilePlaceholder
	}

	if rawParams, has := m["parameters"]; has {
		params, paramsOK := c.parameters(j, base+".parameters", rawParams)
		if !paramsOK {
			return Party{}, false
		}
		p.Parameters = params
	}
	return p, ok
}

func (c *sessionCheck) parameters(j int, base string, raw any) (*Parameters, bool) {
	m, ok := asMap(raw)
	if !ok {
		c.fail(j, base, RuleParametersNotMapping, describe(raw), "parameters must be a mapping")
		return nil, false
	}
	keys := sortedKeys(m)
	seen := map[string]string{}
	for _, k := range keys {
		folded := strings.ToLower(k)
		if first, dup := seen[folded]; dup {
			c.fail(j, base+"."+k, RuleParametersDuplicateKey, k, "parameter %q repeats %q (keys are case-insensitive)", k, first)
			ok = false
			continue
		}
		seen[folded] = k
	}
	if !ok {
		return nil, false
	}

	out := &Parameters{}
	for _, k := range keys {
		val := m[k]
		switch strings.ToLower(k) {
		case ParamPersistentState:
			s, isString := val.(string)
			if !isString || strings.TrimSpace(s) == "" {
				c.fail(j, base+"."+k, RulePersistentState, describe(val), "persistentState must be a file path string")
				ok = false
				continue
			}
			out.PersistentState = c.v.Anonymizer.TokenFor(s)
		case ParamNegotiationData:
			list, isList := val.([]any)
			if !isList {
				c.fail(j, base+"."+k, RuleNegotiationData, describe(val), "negotiationData must be a sequence of file paths")
				ok = false
				continue
			}
			paths := make([]string, 0, len(list))
			for n, entry := range list {
				s, isString := entry.(string)
				if !isString || strings.TrimSpace(s) == "" {
					c.fail(j, fmt.Sprintf("%s.%s[%d]", base, k, n), RuleNegotiationData, describe(entry), "negotiationData entries must be file path strings")
					ok = false
					continue
				}
				paths = append(paths, s)
			}
			if len(paths) != len(list) {
				continue
			}
			out.hasData = true
			for _, s := range paths {
				out.NegotiationData = append(out.NegotiationData, c.v.Anonymizer.TokenFor(s))
			}
		default:
			c.fail(j, base+"."+k, RuleParametersUnknownKey, k, "unknown parameter %q (expected persistentState|negotiationData)", k)
			ok = false
		}
	}
	return out, ok
}

func describe(v any) any {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any, map[any]any:
		return "mapping"
	case []any:
		return "sequence"
	default:
		return v
	}
}

func (v *Validator) profileURI(profile string) string {
	if !v.AbsoluteProfiles || filepath.IsAbs(profile) {
		return "file:" + profile
	}
	abs, err := filepath.Abs(profile)
	if err != nil {
		return "file:" + profile
	}
	return "file:" + filepath.ToSlash(abs)
}
