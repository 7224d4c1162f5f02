// Package disposition reduces validator output to what downstream consumers
// need and detects the terminal discard instruction.
package disposition

import (
	"encoding/json"
	"log/slog"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
)

// Keys of the payload-with-disposition document.
const (
	keyOperationOutcome   = "OperationOutcome"
	keyValidationResults  = "validationResults"
	keyInnerOutcome       = "operationOutcome"
	keyIssue              = "issue"
	keyResourceType       = "resourceType"
	keyDisposition        = "techByDesignDisposition"
	keyAction             = "action"
	keyEntry              = "entry"
	keyResource           = "resource"
	actionDiscard         = "discard"
	informationalCode     = "informational"
	informationalTemplate = "Validation successful. No issues found at or above severity level: "
)

// Processor filters issues by severity and merges outcomes into bundles.
type Processor struct {
	defaultLevel domain.Severity
	logger       *slog.Logger
}

// NewProcessor creates a processor whose threshold defaults to level, or to
// error when level is blank or unknown.
func NewProcessor(level string, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	sev, ok := domain.ParseSeverity(level)
	if !ok {
		sev = domain.DefaultSeverity
	}
	return &Processor{defaultLevel: sev, logger: logger}
}

// Threshold resolves the effective severity threshold: a valid per-request
// override wins over the configured default.
func (p *Processor) Threshold(override string) domain.Severity {
	if override == "" {
		return p.defaultLevel
	}
	if sev, ok := domain.ParseSeverity(override); ok {
		return sev
	}
	p.logger.Warn("ignoring unknown severity level override",
		slog.String("override", override),
		slog.String("default", string(p.defaultLevel)))
	return p.defaultLevel
}

// FilterIssues keeps issues at or above threshold, preserving order. When
// nothing survives it returns a single synthesized informational issue, so
// the result is never empty.
func FilterIssues(issues []map[string]any, threshold domain.Severity) []map[string]any {
	filtered := make([]map[string]any, 0, len(issues))
	for _, issue := range issues {
		sev, ok := issue["severity"].(string)
		if ok && threshold.Admits(sev) {
			filtered = append(filtered, issue)
		}
	}
	if len(filtered) == 0 {
		filtered = append(filtered, map[string]any{
			"severity":    string(domain.SeverityInformation),
			"diagnostics": informationalTemplate + string(threshold),
			"code":        informationalCode,
		})
	}
	return filtered
}

// IsActionDiscard reports whether payload's OperationOutcome carries a
// techByDesignDisposition entry whose action is exactly "discard".
func IsActionDiscard(payload map[string]any) bool {
	outcome, ok := payload[keyOperationOutcome].(map[string]any)
	if !ok {
		return false
	}
	directives, ok := outcome[keyDisposition].([]any)
	if !ok {
		return false
	}
	for _, d := range directives {
		directive, ok := d.(map[string]any)
		if !ok {
			continue
		}
		if action, ok := directive[keyAction].(string); ok && action == actionDiscard {
			return true
		}
	}
	return false
}

// ExtractIssueAndDisposition pulls the first validation result's issues out
// of a payload-with-disposition, filters them, and returns
// {resourceType, issue, techByDesignDisposition?}. It returns nil when the
// payload does not have the expected shape.
func ExtractIssueAndDisposition(payload map[string]any, threshold domain.Severity) map[string]any {
	outcome, ok := payload[keyOperationOutcome].(map[string]any)
	if !ok {
		return nil
	}
	results, ok := outcome[keyValidationResults].([]any)
	if !ok || len(results) == 0 {
		return nil
	}
	first, ok := results[0].(map[string]any)
	if !ok {
		return nil
	}

	var issues []map[string]any
	if inner, ok := first[keyInnerOutcome].(map[string]any); ok {
		if raw, ok := inner[keyIssue].([]any); ok {
			for _, item := range raw {
				if issue, ok := item.(map[string]any); ok {
					issues = append(issues, issue)
				}
			}
		}
	}

	extracted := map[string]any{
		keyResourceType: outcome[keyResourceType],
		keyIssue:        FilterIssues(issues, threshold),
	}
	if directives, ok := outcome[keyDisposition].([]any); ok && len(directives) > 0 {
		extracted[keyDisposition] = directives
	}
	return extracted
}

// AppendOutcomeEntry returns a copy of bundle whose entry array has
// {"resource": outcome} appended after the existing entries. A missing or
// malformed entry field starts a new array.
func AppendOutcomeEntry(bundle map[string]any, outcome map[string]any) map[string]any {
	existing, _ := bundle[keyEntry].([]any)
	entries := make([]any, 0, len(existing)+1)
	for _, e := range existing {
		if _, ok := e.(map[string]any); ok {
			entries = append(entries, e)
		}
	}
	entries = append(entries, map[string]any{keyResource: outcome})

	merged := make(map[string]any, len(bundle)+1)
	for k, v := range bundle {
		merged[k] = v
	}
	merged[keyEntry] = entries
	return merged
}

// PrepareForwardPayload builds the document sent downstream: the original
// bundle with the filtered OperationOutcome appended as a new entry. If the
// outcome cannot be extracted, or the bundle cannot be parsed as a JSON
// object, it falls back to withDisposition unchanged.
func (p *Processor) PrepareForwardPayload(interactionID string, bundle []byte, withDisposition map[string]any, threshold domain.Severity) map[string]any {
	extracted := ExtractIssueAndDisposition(withDisposition, threshold)
	if extracted == nil {
		p.logger.Warn("no outcome extracted from disposition payload",
			slog.String("interaction_id", interactionID))
		return withDisposition
	}

	var bundleMap map[string]any
	if err := json.Unmarshal(bundle, &bundleMap); err != nil || len(bundleMap) == 0 {
		p.logger.Warn("bundle is not a JSON object, forwarding disposition payload",
			slog.String("interaction_id", interactionID))
		return withDisposition
	}

	return AppendOutcomeEntry(bundleMap, extracted)
}
