package settings

// Rule identifiers reported in Finding.Rule.
const (
	RuleBatchNotSequence     = "batch_not_sequence"
	RuleSessionNotMapping    = "session_not_mapping"
	RuleSessionModeKey       = "session_mode_key"
	RuleSessionBodyNotMap    = "session_body_not_mapping"
	RuleSessionBodyFields    = "session_body_fields"
	RuleDeadlineInvalid      = "deadline_invalid"
	RulePartiesNotSequence   = "parties_not_sequence"
	RulePartyCount           = "party_count"
	RulePartyNotMapping      = "party_not_mapping"
	RulePartyFields          = "party_fields"
	RulePartyUnknown         = "party_unknown"
	RuleProfileInvalid       = "profile_invalid"
	RuleProfileNotFound      = "profile_not_found"
	RuleParametersNotMapping = "parameters_not_mapping"
	RuleParametersUnknownKey = "parameters_unknown_key"
	// Parameter keys are case-insensitive, so persistentState and
	// persistentstate in one mapping collide.
	RuleParametersDuplicateKey = "parameters_duplicate_key"
	RulePersistentState        = "persistent_state_invalid"
	RuleNegotiationData        = "negotiation_data_invalid"
)
