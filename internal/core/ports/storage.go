package ports

import (
	"context"
	"encoding/json"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
)

// StateSink is the append-only audit trail.
type StateSink interface {
	// Append stores the record and returns the payload as the sink holds it,
	// possibly enriched. A nil payload with a nil error means no enrichment.
	Append(ctx context.Context, record *domain.StateRecord) (json.RawMessage, error)

	// Close releases the sink.
	Close() error
}

// StateReader is the query side of the audit trail.
type StateReader interface {
	// ListStates returns an interaction's records in write order.
	ListStates(ctx context.Context, interactionID string) ([]*domain.StateRecord, error)

	// LastState returns the most recent record with the given toState,
	// or nil when there is none.
	LastState(ctx context.Context, interactionID string, toState domain.ProcessingState) (*domain.StateRecord, error)
}

// StateStore is a sink that can also be queried.
type StateStore interface {
	StateSink
	StateReader
}
