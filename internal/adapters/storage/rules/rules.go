// Package rules derives disposition directives from validation issues when
// a state sink stores a DISPOSITION record.
package rules

import (
	"encoding/json"
	"strings"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/pkg/config"
)

// Rule attaches a disposition directive to validation outcomes with a
// matching issue. Severity and Contains are optional; an empty rule matches
// nothing.
type Rule struct {
	Name     string
	Severity string
	Contains string
	Action   string
}

// Rules is an ordered rule set. The first matching issue per rule wins.
type Rules []Rule

// FromConfig converts configured rules, dropping those with no action.
func FromConfig(cfg []config.DispositionRule) Rules {
	var rules Rules
	for _, r := range cfg {
		if strings.TrimSpace(r.Action) == "" {
			continue
		}
		name := r.Severity
		if r.Contains != "" {
			name += ":" + r.Contains
		}
		rules = append(rules, Rule{Name: name, Severity: r.Severity, Contains: r.Contains, Action: r.Action})
	}
	return rules
}

func (r Rule) matches(issue domain.Issue) bool {
	if r.Severity == "" && r.Contains == "" {
		return false
	}
	if r.Severity != "" && !strings.EqualFold(r.Severity, issue.Severity) {
		return false
	}
	if r.Contains != "" && !strings.Contains(issue.Diagnostics, r.Contains) {
		return false
	}
	return true
}

// Enrich applies the rules to a DISPOSITION record's {"OperationOutcome":...}
// payload. It returns the payload with techByDesignDisposition extended, or
// the payload unchanged when the record is not a disposition, the payload
// does not decode, or no rule matches.
func (rs Rules) Enrich(rec *domain.StateRecord) json.RawMessage {
	if len(rs) == 0 || rec.ToState != domain.StateDisposition || len(rec.Payload) == 0 {
		return rec.Payload
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(rec.Payload, &envelope); err != nil {
		return rec.Payload
	}
	inner, ok := envelope["OperationOutcome"]
	if !ok {
		return rec.Payload
	}
	var outcome domain.ValidationOutcome
	if err := json.Unmarshal(inner, &outcome); err != nil {
		return rec.Payload
	}

	matched := false
	for _, rule := range rs {
		for _, issue := range outcome.Issues {
			if !rule.matches(issue) {
				continue
			}
			outcome.Disposition = append(outcome.Disposition, domain.DispositionDirective{
				Action: rule.Action,
				Reason: issue.Diagnostics,
				Rule:   rule.Name,
			})
			matched = true
			break
		}
	}
	if !matched {
		return rec.Payload
	}

	doc, err := outcome.Document()
	if err != nil {
		return rec.Payload
	}
	enriched, err := json.Marshal(doc)
	if err != nil {
		return rec.Payload
	}
	return enriched
}
