package domain

import (
	"encoding/json"
	"time"
)

// UserInfo identifies who, or what, caused a state record.
type UserInfo struct {
	Name    string `json:"user_name"`
	ID      string `json:"user_id"`
	Role    string `json:"user_role"`
	Session string `json:"user_session"`
}

// StateRecord is one append-only entry in an interaction's audit trail.
// Records are never mutated after they are written.
type StateRecord struct {
	ID string `json:"id"`
	Interaction
	RequestURI string          `json:"request_uri,omitempty"`
	FromState  ProcessingState `json:"from_state"`
	ToState    ProcessingState `json:"to_state"`
	Nature     Nature          `json:"nature"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	// RawPayload is set when the payload could not be parsed and was stored
	// as a JSON string instead.
	RawPayload        bool            `json:"raw_payload,omitempty"`
	Provenance        string          `json:"provenance,omitempty"`
	User              UserInfo        `json:"user"`
	AdditionalDetails json.RawMessage `json:"additional_details,omitempty"` // {"request": params}; absent on replays
	Elaboration       json.RawMessage `json:"elaboration,omitempty"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Transition returns the edge this record documents.
func (r *StateRecord) Transition() Transition {
	return Transition{From: r.FromState, To: r.ToState}
}

// NatureDetail is the structured nature column: description plus tenant.
func (r *StateRecord) NatureDetail() json.RawMessage {
	b, _ := json.Marshal(map[string]string{
		"nature":    r.Nature.Description(),
		"tenant_id": r.TenantID,
	})
	return b
}

// Transitions extracts the ordered edges of a record history.
func Transitions(records []*StateRecord) []Transition {
	out := make([]Transition, 0, len(records))
	for _, r := range records {
		out = append(out, r.Transition())
	}
	return out
}
