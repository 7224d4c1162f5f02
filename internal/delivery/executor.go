// Package delivery forwards prepared bundles to the scoring system and
// records how each attempt ended.
package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/tjfontaine/bundle-gateway/internal/audit"
	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/processing"
	"github.com/tjfontaine/bundle-gateway/internal/transport"
)

const (
	DefaultContentType = "application/json"
	DefaultTimeout     = 30 * time.Second
	DefaultMaxInFlight = 64

	// maxResponseBytes caps how much of a scoring response is kept.
	maxResponseBytes = 4 << 20
)

// Request is one bundle ready to be forwarded.
type Request struct {
	Context  *processing.Context
	Strategy transport.Strategy
	// BaseURL is the scoring endpoint. Empty means the executor default,
	// unless the context carries an override.
	BaseURL string
	Payload []byte
	// ForwardRecorded means the FORWARD transition was already written by
	// Claim, so Send must not write it again.
	ForwardRecorded bool
}

// Executor sends bundles with a bounded number in flight.
type Executor struct {
	recorder    *audit.Recorder
	ledger      ports.Ledger
	logger      *slog.Logger
	baseURL     string
	contentType string
	timeout     time.Duration
	maxInFlight int64
	sem         *semaphore.Weighted
	wg          sync.WaitGroup
	now         func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithLedger sets the ledger that receives a SENT entry per attempt.
func WithLedger(ledger ports.Ledger) Option {
	return func(e *Executor) { e.ledger = ledger }
}

// WithBaseURL sets the default scoring endpoint.
func WithBaseURL(u string) Option {
	return func(e *Executor) { e.baseURL = u }
}

// WithContentType sets the default Content-Type.
func WithContentType(ct string) Option {
	return func(e *Executor) {
		if ct != "" {
			e.contentType = ct
		}
	}
}

// WithTimeout bounds one attempt, connect through response body.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithMaxInFlight bounds concurrent asynchronous sends.
func WithMaxInFlight(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxInFlight = int64(n)
		}
	}
}

// NewExecutor creates an executor that records through recorder.
func NewExecutor(recorder *audit.Recorder, opts ...Option) *Executor {
	e := &Executor{
		recorder:    recorder,
		logger:      slog.Default(),
		contentType: DefaultContentType,
		timeout:     DefaultTimeout,
		maxInFlight: DefaultMaxInFlight,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sem = semaphore.NewWeighted(e.maxInFlight)
	return e
}

// Timeout reports the per-attempt bound.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// ResolveBaseURL returns the endpoint a request will be sent to.
func (e *Executor) ResolveBaseURL(req Request) string {
	if req.BaseURL != "" {
		return req.BaseURL
	}
	if override := req.Context.BaseURLOverride(); override != "" {
		return override
	}
	return e.baseURL
}

// Dispatch sends req in the background and returns immediately. The
// attempt keeps the values of ctx but not its cancellation.
func (e *Executor) Dispatch(ctx context.Context, req Request) {
	detached := context.WithoutCancel(ctx)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.sem.Acquire(detached, 1); err != nil {
			e.logger.Error("delivery slot unavailable",
				slog.String("interaction_id", req.Context.InteractionID()),
				slog.String("error", err.Error()))
			return
		}
		defer e.sem.Release(1)
		e.Send(detached, req)
	}()
}

// Wait blocks until every dispatched send has finished or ctx is done.
func (e *Executor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Claim writes the FORWARD transition for req before it is sent and reports
// a sink failure. The caller marks req.ForwardRecorded afterwards.
func (e *Executor) Claim(ctx context.Context, req Request) error {
	return e.recorder.ClaimForward(ctx, req.Context, req.Payload)
}

// Send performs one attempt synchronously: record FORWARD, build the
// transport, POST, then record COMPLETE or FAIL.
func (e *Executor) Send(ctx context.Context, req Request) *domain.DeliveryResult {
	pc := req.Context
	baseURL := e.ResolveBaseURL(req)

	ctx, span := otel.Tracer("bundle-gateway/delivery").Start(ctx, "delivery.Send")
	defer span.End()
	span.SetAttributes(
		attribute.String("interaction.id", pc.InteractionID()),
		attribute.String("tenant.id", pc.TenantID()),
		attribute.String("transport.strategy", req.Strategy.Name()),
		attribute.Bool("replay", pc.IsReplay()),
	)

	if !req.ForwardRecorded {
		e.recorder.RecordForward(ctx, pc, req.Payload)
	}

	contentType := pc.ContentType()
	if contentType == "" {
		contentType = e.contentType
	}

	built := req.Strategy.Execute(ctx, &transport.Request{
		BaseURL:     baseURL,
		ContentType: contentType,
		Payload:     req.Payload,
		Interaction: pc.Interaction(),
		Replay:      pc.IsReplay(),
	})
	if !built.OK() {
		failure := built.Failure
		if failure == nil {
			failure = domain.NewTransportError(req.Strategy.Name()+": strategy returned no client", nil)
		}
		return e.fail(ctx, pc, span, &domain.DeliveryResult{Status: domain.DeliveryError, Err: failure}, baseURL, false)
	}

	result, attempted := e.post(ctx, pc, built, baseURL, contentType, req.Payload)
	if result.Succeeded() {
		span.SetStatus(codes.Ok, "")
		e.recorder.RecordComplete(ctx, pc, result.Body)
		e.logger.Info("bundle delivered",
			slog.String("interaction_id", pc.InteractionID()),
			slog.String("tenant_id", pc.TenantID()),
			slog.Int("status_code", result.StatusCode))
		e.recordSent(ctx, pc)
		return result
	}
	return e.fail(ctx, pc, span, result, baseURL, attempted)
}

// post sends the request. attempted is false when it failed before anything
// left the process.
func (e *Executor) post(ctx context.Context, pc *processing.Context, built transport.Result, baseURL, contentType string, payload []byte) (result *domain.DeliveryResult, attempted bool) {
	target, err := targetURL(baseURL, pc.TenantID())
	if err != nil {
		return &domain.DeliveryResult{Status: domain.DeliveryError, Err: err}, false
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return &domain.DeliveryResult{Status: domain.DeliveryError, Err: domain.NewDeliveryError("build scoring request", err)}, false
	}
	httpReq.Header.Set("Content-Type", contentType)
	if built.Authorize != nil {
		if err := built.Authorize(ctx, httpReq); err != nil {
			if domain.KindOf(err) == "" {
				err = domain.NewTransportError(built.Strategy+": authorize request", err)
			}
			return &domain.DeliveryResult{Status: domain.DeliveryError, Err: err}, false
		}
	}

	resp, err := built.Client.Do(httpReq)
	if err != nil {
		return Classify(nil, nil, err), true
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Classify(nil, nil, err), true
	}
	return Classify(resp, body, nil), true
}

// fail records FAIL. A 2xx response that reported a non-success status is
// stored as the response body; everything else is stored as failure detail.
func (e *Executor) fail(ctx context.Context, pc *processing.Context, span trace.Span, result *domain.DeliveryResult, baseURL string, attempted bool) *domain.DeliveryResult {
	span.RecordError(result.Err)
	span.SetStatus(codes.Error, string(result.Status))

	if result.Status == domain.DeliveryFailure && result.StatusCode >= 200 && result.StatusCode <= 299 {
		e.recorder.RecordFailed(ctx, pc, result.Body)
	} else {
		e.recorder.RecordFailure(ctx, pc, result.Err, baseURL)
	}

	e.logger.Error("bundle delivery failed",
		slog.String("interaction_id", pc.InteractionID()),
		slog.String("tenant_id", pc.TenantID()),
		slog.String("status", string(result.Status)),
		slog.Int("status_code", result.StatusCode),
		slog.String("error", errString(result.Err)))

	if attempted {
		e.recordSent(ctx, pc)
	}
	return result
}

func (e *Executor) recordSent(ctx context.Context, pc *processing.Context) {
	if e.ledger == nil {
		return
	}
	entry := ledgerEntry(pc, e.now())
	if err := e.ledger.Record(ctx, entry); err != nil {
		e.logger.Error("data ledger write failed",
			slog.String("interaction_id", pc.InteractionID()),
			slog.String("action", entry.Action),
			slog.String("error", err.Error()))
	}
}

func ledgerEntry(pc *processing.Context, at time.Time) ports.LedgerEntry {
	ia := pc.Interaction()
	dataID := ia.BundleID
	if dataID == "" {
		dataID = ia.InteractionID
	}
	return ports.LedgerEntry{
		Actor:               ports.ActorTechBD,
		Action:              ports.ActionSent,
		Destination:         ports.ActorNYEC,
		DataID:              dataID,
		InteractionID:       ia.InteractionID,
		GroupInteractionID:  ia.GroupInteractionID,
		MasterInteractionID: ia.MasterInteractionID,
		Provenance:          pc.Provenance(),
		SourceType:          string(ia.SourceType),
		ExecutedAt:          at.UTC(),
	}
}

func targetURL(baseURL, tenantID string) (string, error) {
	if baseURL == "" {
		return "", domain.NewConfigurationError("no scoring base URL configured")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", domain.NewDeliveryError(fmt.Sprintf("invalid scoring base URL %q", baseURL), err)
	}
	q := u.Query()
	q.Set("processingAgent", tenantID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
