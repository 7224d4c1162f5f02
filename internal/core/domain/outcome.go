package domain

import (
	"encoding/json"
	"strings"
)

// Severity is a validation issue severity, ordered from most to least severe.
type Severity string

const (
	SeverityFatal       Severity = "fatal"
	SeverityError       Severity = "error"
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// DefaultSeverity is the threshold used when nothing is configured.
const DefaultSeverity = SeverityError

var severityRank = map[Severity]int{
	SeverityFatal:       0,
	SeverityError:       1,
	SeverityWarning:     2,
	SeverityInformation: 3,
}

// ParseSeverity normalizes s. ok is false for blank or unknown levels.
func ParseSeverity(s string) (Severity, bool) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	_, ok := severityRank[sev]
	return sev, ok
}

// Admits reports whether an issue with the given severity passes a threshold
// of s. Thresholds are cumulative: warning admits fatal, error and warning.
func (s Severity) Admits(issueSeverity string) bool {
	threshold, ok := severityRank[s]
	if !ok {
		threshold = severityRank[DefaultSeverity]
	}
	rank, ok := severityRank[Severity(strings.ToLower(issueSeverity))]
	return ok && rank <= threshold
}

// Issue is a single validator finding.
type Issue struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code,omitempty"`
	Diagnostics string   `json:"diagnostics,omitempty"`
	Location    []string `json:"location,omitempty"`
	Expression  []string `json:"expression,omitempty"`
}

// DispositionDirective is an instruction attached to a validation result,
// for example {"action": "discard"}.
type DispositionDirective struct {
	Action string `json:"action"`
	Reason string `json:"reason,omitempty"`
	Rule   string `json:"rule,omitempty"`
}

// ValidationOutcome is the normalized result of a validator run.
type ValidationOutcome struct {
	ResourceType string
	SessionID    string
	Valid        bool
	Issues       []Issue
	Disposition  []DispositionDirective
	Version      string
}

type outcomeWire struct {
	ResourceType            string                 `json:"resourceType"`
	BundleSessionID         string                 `json:"bundleSessionId,omitempty"`
	Version                 string                 `json:"techByDesignVersion,omitempty"`
	ValidationResults       []validationResultWire `json:"validationResults"`
	TechByDesignDisposition []DispositionDirective `json:"techByDesignDisposition,omitempty"`
}

type validationResultWire struct {
	Valid            bool                 `json:"valid"`
	OperationOutcome operationOutcomeWire `json:"operationOutcome"`
}

type operationOutcomeWire struct {
	ResourceType string  `json:"resourceType"`
	Issue        []Issue `json:"issue"`
}

// MarshalJSON writes the validator wire shape:
// {resourceType, bundleSessionId, validationResults:[{valid, operationOutcome:{issue}}], techByDesignDisposition}.
func (o ValidationOutcome) MarshalJSON() ([]byte, error) {
	rt := o.ResourceType
	if rt == "" {
		rt = "OperationOutcome"
	}
	issues := o.Issues
	if issues == nil {
		issues = []Issue{}
	}
	return json.Marshal(outcomeWire{
		ResourceType:    rt,
		BundleSessionID: o.SessionID,
		Version:         o.Version,
		ValidationResults: []validationResultWire{{
			Valid:            o.Valid,
			OperationOutcome: operationOutcomeWire{ResourceType: "OperationOutcome", Issue: issues},
		}},
		TechByDesignDisposition: o.Disposition,
	})
}

// UnmarshalJSON reads the validator wire shape. Only the first validation
// result contributes issues.
func (o *ValidationOutcome) UnmarshalJSON(b []byte) error {
	var w outcomeWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*o = ValidationOutcome{
		ResourceType: w.ResourceType,
		SessionID:    w.BundleSessionID,
		Version:      w.Version,
		Disposition:  w.TechByDesignDisposition,
	}
	if len(w.ValidationResults) > 0 {
		o.Valid = w.ValidationResults[0].Valid
		o.Issues = w.ValidationResults[0].OperationOutcome.Issue
	}
	return nil
}

// Document wraps the outcome in the {"OperationOutcome": ...} envelope that
// is recorded and returned to callers.
func (o ValidationOutcome) Document() (map[string]any, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	var inner map[string]any
	if err := json.Unmarshal(b, &inner); err != nil {
		return nil, err
	}
	return map[string]any{"OperationOutcome": inner}, nil
}

// FatalOutcome builds a single-issue invalid outcome, used when a payload is
// rejected before or instead of a validator run.
func FatalOutcome(sessionID, code, message string) ValidationOutcome {
	return ValidationOutcome{
		ResourceType: "OperationOutcome",
		SessionID:    sessionID,
		Valid:        false,
		Issues: []Issue{{
			Severity:    "fatal",
			Code:        code,
			Diagnostics: message,
		}},
	}
}
