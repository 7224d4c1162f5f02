// Package memory is an in-process state store for tests and single-node
// development runs.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tjfontaine/bundle-gateway/internal/adapters/storage/rules"
	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
)

// Store keeps state records per interaction in write order.
type Store struct {
	mu      sync.RWMutex
	records map[string][]*domain.StateRecord
	rules   rules.Rules
}

// New creates an empty store.
func New(rs rules.Rules) *Store {
	return &Store{
		records: make(map[string][]*domain.StateRecord),
		rules:   rs,
	}
}

// Append stores a copy of rec and returns its stored payload.
func (s *Store) Append(ctx context.Context, rec *domain.StateRecord) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stored := *rec
	stored.Payload = append(json.RawMessage(nil), s.rules.Enrich(rec)...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.InteractionID] = append(s.records[rec.InteractionID], &stored)
	return stored.Payload, nil
}

// ListStates returns copies of an interaction's records.
func (s *Store) ListStates(ctx context.Context, interactionID string) ([]*domain.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[interactionID]
	out := make([]*domain.StateRecord, len(recs))
	for i, r := range recs {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// LastState returns the newest record with the given toState.
func (s *Store) LastState(ctx context.Context, interactionID string, toState domain.ProcessingState) (*domain.StateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[interactionID]
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].ToState == toState {
			cp := *recs[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) Close() error { return nil }

var _ ports.StateStore = (*Store)(nil)
