package utility

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Bid assigns one value per issue. Values are in their textual form, as used
// for keys of the profile's value utility tables.
type Bid map[string]string

// ScoreError means a bid does not fit the profile it is scored against.
type ScoreError struct {
	Issue  string
	Value  string
	Reason string
}

func (e *ScoreError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("score bid: issue %q value %q: %s", e.Issue, e.Value, e.Reason)
	}
	return fmt.Sprintf("score bid: issue %q: %s", e.Issue, e.Reason)
}

// BidFromIssueValues converts an engine "issuevalues" object. Discrete values
// arrive as strings, numeric values as numbers.
func BidFromIssueValues(in map[string]any) (Bid, error) {
	out := make(Bid, len(in))
	for issue, v := range in {
		s, err := valueKey(v)
		if err != nil {
			return nil, &ScoreError{Issue: issue, Reason: err.Error()}
		}
		out[issue] = s
	}
	return out, nil
}

func valueKey(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// ScoreBid is the normalized weighted sum of the bid's value utilities:
// sum(weight_i * u_i(value_i)) / sum(weight_i). The bid must name exactly the
// profile's issues.
func ScoreBid(p Profile, bid Bid) (float64, error) {
	if p.totalWeight <= 0 {
		if err := p.init(); err != nil {
			return 0, err
		}
	}
	issues := make([]string, 0, len(bid))
	for issue := range bid {
		issues = append(issues, issue)
	}
	sort.Strings(issues)

	sum := 0.0
	for _, issue := range issues {
		is, ok := p.Issues[issue]
		if !ok {
			return 0, &ScoreError{Issue: issue, Value: bid[issue], Reason: "issue not in profile"}
		}
		u, ok := is.Values[bid[issue]]
		if !ok {
			return 0, &ScoreError{Issue: issue, Value: bid[issue], Reason: "value not in profile's utility table"}
		}
		sum += is.Weight * u
	}
	for _, issue := range p.IssueNames() {
		if _, ok := bid[issue]; !ok {
			return 0, &ScoreError{Issue: issue, Reason: "bid does not assign a value"}
		}
	}
	return sum / p.totalWeight, nil
}

// Score is ScoreBid with the receiver as profile.
func (p Profile) Score(bid Bid) (float64, error) {
	return ScoreBid(p, bid)
}
