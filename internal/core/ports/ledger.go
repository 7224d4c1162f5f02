package ports

import (
	"context"
	"time"
)

// Ledger actors and actions.
const (
	ActorTechBD = "TECHBD"
	ActorNYEC   = "NYEC"

	ActionReceived = "RECEIVED"
	ActionSent     = "SENT"
)

// LedgerEntry records a hand-off of a bundle between two actors.
type LedgerEntry struct {
	Actor               string    `json:"actor"`
	Action              string    `json:"action"`
	Destination         string    `json:"destination"`
	DataID              string    `json:"dataId"`
	InteractionID       string    `json:"interactionId"`
	GroupInteractionID  string    `json:"groupInteractionId,omitempty"`
	MasterInteractionID string    `json:"masterInteractionId,omitempty"`
	Provenance          string    `json:"provenance,omitempty"`
	SourceType          string    `json:"sourceType,omitempty"`
	ExecutedAt          time.Time `json:"executedAt"`
}

// Ledger is the data-ledger observability sink. Implementations are best
// effort: callers log returned errors and move on.
type Ledger interface {
	Record(ctx context.Context, entry LedgerEntry) error
}
