package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tjfontaine/bundle-gateway/internal/adapters/validation"
	"github.com/tjfontaine/bundle-gateway/internal/audit"
	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/delivery"
	"github.com/tjfontaine/bundle-gateway/internal/disposition"
	"github.com/tjfontaine/bundle-gateway/internal/processing"
	"github.com/tjfontaine/bundle-gateway/internal/transport"
)

// Issue code used when the validator could not produce an outcome.
const codeValidatorUnavailable = "exception"

// Settings is the hot-swappable part of the pipeline. A request keeps the
// snapshot it started with.
type Settings struct {
	Registry  *transport.Registry
	Processor *disposition.Processor
	// Validator runs after the precheck. Nil means precheck only.
	Validator ports.Validator
}

// Sender hands prepared payloads to the delivery executor.
type Sender interface {
	Dispatch(ctx context.Context, req delivery.Request)
	ResolveBaseURL(req delivery.Request) string
}

// Response is what a caller receives for a processed bundle.
type Response struct {
	InteractionID string
	// Document is the {"OperationOutcome": ...} body returned to the caller.
	Document  map[string]any
	Valid     bool
	Forwarded bool
	Discarded bool
	Strategy  string
}

// Service runs bundles through validation, disposition and delivery.
type Service struct {
	recorder *audit.Recorder
	sender   Sender
	precheck ports.Validator
	ledger   ports.Ledger
	logger   *slog.Logger
	now      func() time.Time
	settings atomic.Pointer[Settings]
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLedger reports receipt events to ledger.
func WithLedger(ledger ports.Ledger) Option {
	return func(s *Service) { s.ledger = ledger }
}

// WithPrecheck replaces the structural precheck.
func WithPrecheck(v ports.Validator) Option {
	return func(s *Service) {
		if v != nil {
			s.precheck = v
		}
	}
}

// NewService creates a service. settings must carry a registry and a
// processor.
func NewService(recorder *audit.Recorder, sender Sender, settings *Settings, opts ...Option) *Service {
	s := &Service{
		recorder: recorder,
		sender:   sender,
		precheck: validation.NewPrecheck(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.settings.Store(settings)
	return s
}

// Reconfigure swaps the settings used by requests that start afterwards.
func (s *Service) Reconfigure(settings *Settings) {
	s.settings.Store(settings)
	s.logger.Info("pipeline settings reloaded",
		slog.Any("strategies", settings.Registry.Names()))
}

// Select resolves a strategy against the current settings.
func (s *Service) Select(hint, tenantID string) (transport.Strategy, error) {
	return s.settings.Load().Registry.Select(hint, tenantID)
}

// ProcessBundle validates payload, records each lifecycle step, and
// dispatches the merged bundle for delivery. Only configuration errors are
// returned; every other failure ends up in the audit trail.
func (s *Service) ProcessBundle(ctx context.Context, payload []byte, params map[string]string) (*Response, error) {
	ctx, span := otel.Tracer("bundle-gateway/pipeline").Start(ctx, "pipeline.ProcessBundle")
	defer span.End()
	start := s.now()

	pc, err := processing.Assemble(params, payload)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("interaction.id", pc.InteractionID()),
		attribute.String("tenant.id", pc.TenantID()),
		attribute.String("source.type", string(pc.SourceType())),
	)
	settings := s.settings.Load()

	forwarding := !pc.IsValidationOnly() && !pc.IsHealthCheck()
	var strategy transport.Strategy
	if forwarding {
		strategy, err = settings.Registry.Select(pc.StrategyHint(), pc.TenantID())
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if s.sender.ResolveBaseURL(delivery.Request{Context: pc}) == "" {
			err := domain.NewConfigurationError("no scoring base URL configured for tenant %s", pc.TenantID())
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	s.logger.Info("bundle processing start",
		slog.String("interaction_id", pc.InteractionID()),
		slog.String("tenant_id", pc.TenantID()),
		slog.String("source_type", string(pc.SourceType())))

	if !pc.SourceType().IsConverted() {
		s.recordReceived(ctx, pc)
	}
	if !pc.IsHealthCheck() {
		s.recorder.RecordOriginal(ctx, pc, payload)
	}

	outcome, proceed := s.validate(ctx, pc, settings, payload)
	document, err := outcome.Document()
	if err != nil {
		// Document only fails on values that cannot be encoded, which an
		// outcome never holds.
		return nil, domain.NewValidationError("encode outcome", err)
	}
	resp := &Response{InteractionID: pc.InteractionID(), Document: document, Valid: outcome.Valid}

	var withDisposition map[string]any
	if !pc.IsHealthCheck() {
		withDisposition = s.recorder.RecordValidation(ctx, pc, document)
	}
	if !proceed {
		if withDisposition != nil {
			resp.Document = withDisposition
		}
		s.finish(pc, start, "rejected")
		return resp, nil
	}
	if !forwarding {
		s.finish(pc, start, "validated")
		return resp, nil
	}
	// Without a sink enrichment the validator's own directives still apply.
	if withDisposition != nil {
		resp.Document = withDisposition
	}
	if disposition.IsActionDiscard(resp.Document) {
		resp.Discarded = true
		span.SetAttributes(attribute.Bool("bundle.discarded", true))
		s.finish(pc, start, "discarded")
		return resp, nil
	}

	threshold := settings.Processor.Threshold(pc.SeverityLevel())
	forward := settings.Processor.PrepareForwardPayload(pc.InteractionID(), payload, resp.Document, threshold)
	body, err := json.Marshal(forward)
	if err != nil {
		s.logger.Error("failed to encode forward payload",
			slog.String("interaction_id", pc.InteractionID()),
			slog.String("error", err.Error()))
		return resp, nil
	}

	span.SetAttributes(attribute.String("transport.strategy", strategy.Name()))
	s.sender.Dispatch(ctx, delivery.Request{Context: pc, Strategy: strategy, Payload: body})
	resp.Forwarded = true
	resp.Strategy = strategy.Name()
	s.finish(pc, start, "forwarded")
	return resp, nil
}

// validate runs the precheck and then the validator. proceed is false when
// the payload must not go any further.
func (s *Service) validate(ctx context.Context, pc *processing.Context, settings *Settings, payload []byte) (domain.ValidationOutcome, bool) {
	req := &ports.ValidationRequest{
		Payload:       payload,
		InteractionID: pc.InteractionID(),
		TenantID:      pc.TenantID(),
		SourceType:    pc.SourceType(),
		Provenance:    pc.Provenance(),
		Params:        pc.Params(),
	}

	pre, err := s.precheck.Validate(ctx, req)
	if err != nil {
		return s.unavailable(pc, s.precheck.Name(), err), false
	}
	if !pre.Valid {
		s.logger.Info("bundle failed precheck",
			slog.String("interaction_id", pc.InteractionID()),
			slog.Any("issues", pre.Issues))
		return *pre, false
	}
	if settings.Validator == nil {
		return *pre, true
	}

	out, err := settings.Validator.Validate(ctx, req)
	if err != nil {
		return s.unavailable(pc, settings.Validator.Name(), err), false
	}
	if out == nil {
		return *pre, true
	}
	if out.SessionID == "" {
		out.SessionID = pc.InteractionID()
	}
	return *out, true
}

func (s *Service) unavailable(pc *processing.Context, name string, err error) domain.ValidationOutcome {
	s.logger.Error("validator could not run",
		slog.String("interaction_id", pc.InteractionID()),
		slog.String("validator", name),
		slog.String("error", err.Error()))
	msg := err.Error()
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		msg = pe.Message
	}
	return domain.FatalOutcome(pc.InteractionID(), codeValidatorUnavailable, "validation could not be performed: "+msg)
}

func (s *Service) recordReceived(ctx context.Context, pc *processing.Context) {
	if s.ledger == nil {
		return
	}
	i := pc.Interaction()
	entry := ports.LedgerEntry{
		Actor:               ports.ActorTechBD,
		Action:              ports.ActionReceived,
		Destination:         ports.ActorTechBD,
		DataID:              i.LedgerSubject(),
		InteractionID:       i.InteractionID,
		GroupInteractionID:  i.GroupInteractionID,
		MasterInteractionID: i.MasterInteractionID,
		Provenance:          pc.Provenance(),
		SourceType:          string(i.SourceType),
		ExecutedAt:          s.now(),
	}
	if err := s.ledger.Record(ctx, entry); err != nil {
		s.logger.Error("data ledger write failed",
			slog.String("interaction_id", i.InteractionID),
			slog.String("action", ports.ActionReceived),
			slog.String("error", err.Error()))
	}
}

func (s *Service) finish(pc *processing.Context, start time.Time, result string) {
	s.logger.Info("bundle processing complete",
		slog.String("interaction_id", pc.InteractionID()),
		slog.String("result", result),
		slog.Duration("elapsed", s.now().Sub(start)))
}
