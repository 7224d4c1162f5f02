// Package replay re-drives failed interactions through delivery using the
// payload recorded on their last forward attempt.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/delivery"
	"github.com/tjfontaine/bundle-gateway/internal/processing"
	"github.com/tjfontaine/bundle-gateway/internal/transport"
)

// Selector resolves the transport strategy for an interaction.
type Selector interface {
	Select(hint, tenantID string) (transport.Strategy, error)
}

// Sender delivers a prepared request. Claim durably records the FORWARD
// transition before anything is sent.
type Sender interface {
	Claim(ctx context.Context, req delivery.Request) error
	Dispatch(ctx context.Context, req delivery.Request)
	Send(ctx context.Context, req delivery.Request) *domain.DeliveryResult
}

// Result describes an accepted replay.
type Result struct {
	InteractionID string                 `json:"interactionId"`
	TenantID      string                 `json:"tenantId"`
	Strategy      string                 `json:"strategy"`
	ForwardedFrom string                 `json:"forwardedFromRecord"`
	Delivery      *domain.DeliveryResult `json:"-"`
}

// Coordinator runs replays. It never invokes validation.
//
// At most one replay per interaction moves past the FAIL check: the check
// and the FAIL -> FORWARD write happen under a per-interaction claim, so a
// second request sees FORWARD and is rejected.
type Coordinator struct {
	states   ports.StateReader
	selector Selector
	sender   Sender
	logger   *slog.Logger

	mu      sync.Mutex
	claimed map[string]struct{}
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator creates a replay coordinator.
func NewCoordinator(states ports.StateReader, selector Selector, sender Sender, opts ...Option) *Coordinator {
	c := &Coordinator{
		states:   states,
		selector: selector,
		sender:   sender,
		logger:   slog.Default(),
		claimed:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Replay dispatches the interaction asynchronously.
func (c *Coordinator) Replay(ctx context.Context, interactionID string, params map[string]string) (*Result, error) {
	return c.run(ctx, interactionID, params, false)
}

// ReplaySync delivers the interaction and waits for the outcome.
func (c *Coordinator) ReplaySync(ctx context.Context, interactionID string, params map[string]string) (*Result, error) {
	return c.run(ctx, interactionID, params, true)
}

func (c *Coordinator) run(ctx context.Context, interactionID string, params map[string]string, wait bool) (*Result, error) {
	ctx, span := otel.Tracer("bundle-gateway/replay").Start(ctx, "replay.Replay")
	defer span.End()
	span.SetAttributes(attribute.String("interaction.id", interactionID))

	if !c.claim(interactionID) {
		return nil, domain.NewConfigurationError("interaction %s is already being replayed", interactionID)
	}
	defer c.release(interactionID)

	history, err := c.states.ListStates(ctx, interactionID)
	if err != nil {
		return nil, fmt.Errorf("load state history for %s: %w", interactionID, err)
	}
	if len(history) == 0 {
		return nil, domain.NewConfigurationError("interaction %s has no recorded states", interactionID)
	}
	last := history[len(history)-1]
	if last.ToState != domain.StateFail {
		return nil, domain.NewConfigurationError("interaction %s is in state %s; only %s interactions can be replayed",
			interactionID, last.ToState, domain.StateFail)
	}

	forward := lastForward(history)
	if forward == nil || len(forward.Payload) == 0 {
		return nil, domain.NewConfigurationError("interaction %s has no forwarded payload to replay", interactionID)
	}
	if forward.RawPayload {
		return nil, domain.NewConfigurationError("interaction %s forwarded payload was not structured JSON", interactionID)
	}
	payload := []byte(forward.Payload)

	pc, err := processing.Assemble(replayParams(last, originalParams(history), params), payload)
	if err != nil {
		return nil, err
	}
	pc = pc.WithReplay()

	strategy, err := c.selector.Select(pc.StrategyHint(), pc.TenantID())
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tenant.id", pc.TenantID()),
		attribute.String("transport.strategy", strategy.Name()),
	)

	req := delivery.Request{Context: pc, Strategy: strategy, Payload: payload}
	if err := c.sender.Claim(ctx, req); err != nil {
		return nil, fmt.Errorf("claim replay of %s: %w", interactionID, err)
	}
	req.ForwardRecorded = true

	result := &Result{
		InteractionID: pc.InteractionID(),
		TenantID:      pc.TenantID(),
		Strategy:      strategy.Name(),
		ForwardedFrom: forward.ID,
	}

	c.logger.Info("replaying interaction",
		slog.String("interaction_id", pc.InteractionID()),
		slog.String("tenant_id", pc.TenantID()),
		slog.String("strategy", strategy.Name()),
		slog.String("forward_record", forward.ID))

	if wait {
		result.Delivery = c.sender.Send(ctx, req)
	} else {
		c.sender.Dispatch(ctx, req)
	}
	return result, nil
}

func (c *Coordinator) claim(interactionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.claimed[interactionID]; busy {
		return false
	}
	c.claimed[interactionID] = struct{}{}
	return true
}

func (c *Coordinator) release(interactionID string) {
	c.mu.Lock()
	delete(c.claimed, interactionID)
	c.mu.Unlock()
}

// lastForward finds the newest FORWARD record written before the final FAIL.
func lastForward(history []*domain.StateRecord) *domain.StateRecord {
	for i := len(history) - 2; i >= 0; i-- {
		if history[i].ToState == domain.StateForward {
			return history[i]
		}
	}
	return nil
}

// carriedParams are reused from the original request unless the replay
// caller overrides them.
var carriedParams = []string{
	processing.ParamTransportStrategy,
	processing.ParamCustomDataLakeAPI,
	processing.ParamDataLakeAPIContentType,
	processing.ParamProvenance,
	processing.ParamUserName,
	processing.ParamUserID,
	processing.ParamUserRole,
}

// originalParams returns the parameter snapshot of the first record that
// carries one.
func originalParams(history []*domain.StateRecord) map[string]string {
	for _, rec := range history {
		if len(rec.AdditionalDetails) == 0 {
			continue
		}
		var details struct {
			Request map[string]string `json:"request"`
		}
		if err := json.Unmarshal(rec.AdditionalDetails, &details); err == nil && details.Request != nil {
			return details.Request
		}
	}
	return nil
}

// replayParams rebuilds request parameters for a replay. Identity always
// comes from the failed record; routing parameters come from the caller,
// then from the original request.
func replayParams(rec *domain.StateRecord, original, caller map[string]string) map[string]string {
	params := maps.Clone(caller)
	if params == nil {
		params = make(map[string]string)
	}
	for _, key := range carriedParams {
		if _, ok := params[key]; !ok && original[key] != "" {
			params[key] = original[key]
		}
	}
	delete(params, processing.ParamCorrelationID)
	params[processing.ParamInteractionID] = rec.InteractionID
	params[processing.ParamTenantID] = rec.TenantID
	params[processing.ParamSourceType] = string(rec.SourceType)
	if rec.GroupInteractionID != "" {
		params[processing.ParamGroupInteractionID] = rec.GroupInteractionID
	}
	if rec.MasterInteractionID != "" {
		params[processing.ParamMasterInteractionID] = rec.MasterInteractionID
	}
	if _, ok := params[processing.ParamRequestURI]; !ok {
		params[processing.ParamRequestURI] = rec.RequestURI
	}
	if _, ok := params[processing.ParamProvenance]; !ok {
		params[processing.ParamProvenance] = "replay"
	}
	return params
}
