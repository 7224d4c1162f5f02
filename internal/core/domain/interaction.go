package domain

import "strings"

// SourceType identifies the ingestion channel a bundle arrived through.
type SourceType string

const (
	SourceFHIR  SourceType = "FHIR"
	SourceCSV   SourceType = "CSV"
	SourceCCDA  SourceType = "CCDA"
	SourceHL7V2 SourceType = "HL7V2"
)

// ParseSourceType normalizes s, defaulting to FHIR when blank or unknown.
func ParseSourceType(s string) SourceType {
	switch SourceType(strings.ToUpper(strings.TrimSpace(s))) {
	case SourceCSV:
		return SourceCSV
	case SourceCCDA:
		return SourceCCDA
	case SourceHL7V2:
		return SourceHL7V2
	default:
		return SourceFHIR
	}
}

// IsConverted reports whether the bundle was produced from a non-FHIR source.
// Converted sources are ledgered upstream, at conversion time.
func (s SourceType) IsConverted() bool {
	return s == SourceCSV || s == SourceCCDA || s == SourceHL7V2
}

// Interaction is the identity of one unit of work. It is assigned at request
// entry and never changes afterwards.
type Interaction struct {
	InteractionID       string     `json:"interaction_id"`
	TenantID            string     `json:"tenant_id"`
	GroupInteractionID  string     `json:"group_interaction_id,omitempty"`
	MasterInteractionID string     `json:"master_interaction_id,omitempty"`
	SourceType          SourceType `json:"source_type"`
	BundleID            string     `json:"bundle_id,omitempty"`
}

// LedgerSubject is the identifier reported to the data ledger: the bundle id
// when one was extracted, otherwise the interaction id.
func (i Interaction) LedgerSubject() string {
	if i.BundleID != "" {
		return i.BundleID
	}
	return i.InteractionID
}
