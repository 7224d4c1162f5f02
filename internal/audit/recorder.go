// Package audit writes the append-only state trail for bundle interactions.
//
// Every write is best effort. A sink failure is logged and swallowed so the
// audit trail never aborts the business flow; callers treat a nil return as
// "no enrichment available".
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/processing"
)

const (
	createdBy           = "bundle-gateway/audit.Recorder"
	defaultWriteTimeout = 5 * time.Second
)

// Recorder appends state transitions to a sink.
type Recorder struct {
	sink    ports.StateSink
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger used for write outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithWriteTimeout bounds each sink write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a recorder over sink.
func NewRecorder(sink ports.StateSink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:    sink,
		logger:  slog.Default(),
		timeout: defaultWriteTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordOriginal writes NONE -> ACCEPT_BUNDLE with the payload as received.
func (r *Recorder) RecordOriginal(ctx context.Context, pc *processing.Context, payload []byte) {
	body, raw := toPayload(payload)
	if raw {
		r.logger.Warn("original payload is not structured JSON, storing raw",
			slog.String("interaction_id", pc.InteractionID()))
	}
	r.write(ctx, pc, &domain.StateRecord{
		FromState:  domain.StateNone,
		ToState:    domain.StateAcceptBundle,
		Nature:     domain.NatureOriginalPayload,
		Payload:    body,
		RawPayload: raw,
	}, false)
}

// RecordValidation writes ACCEPT_BUNDLE -> DISPOSITION and returns the
// payload-with-disposition the sink handed back. The returned document, not
// the one passed in, drives routing decisions. Nil means the sink returned
// nothing usable.
func (r *Recorder) RecordValidation(ctx context.Context, pc *processing.Context, document map[string]any) map[string]any {
	body, err := json.Marshal(document)
	if err != nil {
		r.logger.Error("failed to encode validation outcome",
			slog.String("interaction_id", pc.InteractionID()),
			slog.String("error", err.Error()))
		return nil
	}

	enriched := r.write(ctx, pc, &domain.StateRecord{
		FromState: domain.StateAcceptBundle,
		ToState:   domain.StateDisposition,
		Nature:    domain.NatureDisposition,
		Payload:   body,
	}, false)
	if len(enriched) == 0 {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal(enriched, &out); err != nil {
		r.logger.Warn("sink returned a non-object disposition payload",
			slog.String("interaction_id", pc.InteractionID()),
			slog.String("error", err.Error()))
		return nil
	}
	return out
}

// RecordForward writes DISPOSITION -> FORWARD, or FAIL -> FORWARD for a
// replay context. payload is the exact body about to be sent.
func (r *Recorder) RecordForward(ctx context.Context, pc *processing.Context, payload []byte) {
	r.write(ctx, pc, forwardRecord(pc, payload), false)
}

// ClaimForward writes the same record as RecordForward but reports a sink
// failure. Replays use it so an interaction leaves FAIL before anything is
// sent.
func (r *Recorder) ClaimForward(ctx context.Context, pc *processing.Context, payload []byte) error {
	_, err := r.append(ctx, pc, forwardRecord(pc, payload), false)
	return err
}

func forwardRecord(pc *processing.Context, payload []byte) *domain.StateRecord {
	from := domain.StateDisposition
	if pc.IsReplay() {
		from = domain.StateFail
	}
	body, raw := toPayload(payload)
	return &domain.StateRecord{
		FromState:  from,
		ToState:    domain.StateForward,
		Nature:     domain.ForwardNature(pc.IsReplay()),
		Payload:    body,
		RawPayload: raw,
		Provenance: forwardProvenance(pc),
	}
}

// RecordComplete writes FORWARD -> COMPLETE with the scoring response body.
func (r *Recorder) RecordComplete(ctx context.Context, pc *processing.Context, response []byte) {
	body, raw := toPayload(response)
	r.write(ctx, pc, &domain.StateRecord{
		FromState:  domain.StateForward,
		ToState:    domain.StateComplete,
		Nature:     domain.CompleteNature(pc.IsReplay()),
		Payload:    body,
		RawPayload: raw,
	}, true)
}

// RecordFailed writes FORWARD -> FAIL with a response body or failure message.
func (r *Recorder) RecordFailed(ctx context.Context, pc *processing.Context, detail []byte) {
	body, raw := toPayload(detail)
	r.write(ctx, pc, &domain.StateRecord{
		FromState:  domain.StateForward,
		ToState:    domain.StateFail,
		Nature:     domain.FailNature(pc.IsReplay()),
		Payload:    body,
		RawPayload: raw,
	}, true)
}

// RecordFailure writes FORWARD -> FAIL capturing err's cause chain and, for
// HTTP status errors, the downstream response.
func (r *Recorder) RecordFailure(ctx context.Context, pc *processing.Context, err error, baseURL string) {
	body, encErr := json.Marshal(FailureDetail(err, baseURL, pc.TenantID()))
	if encErr != nil {
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	r.write(ctx, pc, &domain.StateRecord{
		FromState: domain.StateForward,
		ToState:   domain.StateFail,
		Nature:    domain.FailNature(pc.IsReplay()),
		Payload:   body,
	}, true)
}

func (r *Recorder) write(ctx context.Context, pc *processing.Context, rec *domain.StateRecord, finished bool) json.RawMessage {
	enriched, _ := r.append(ctx, pc, rec, finished)
	return enriched
}

func (r *Recorder) append(ctx context.Context, pc *processing.Context, rec *domain.StateRecord, finished bool) (json.RawMessage, error) {
	rec.ID = uuid.NewString()
	rec.Interaction = pc.Interaction()
	rec.RequestURI = pc.RequestURI()
	rec.User = pc.User()
	rec.User.Session = uuid.NewString()
	if rec.Provenance == "" {
		rec.Provenance = pc.Provenance()
	}
	rec.Elaboration = pc.Elaboration()
	rec.CreatedBy = createdBy
	rec.CreatedAt = r.now().UTC()

	if !pc.IsReplay() {
		params := pc.Params()
		if params == nil {
			params = map[string]string{}
		}
		if finished {
			params[processing.ParamObservabilityFinishMetric] = rec.CreatedAt.Format(time.RFC3339Nano)
		}
		if details, err := json.Marshal(map[string]any{"request": params}); err == nil {
			rec.AdditionalDetails = details
		}
	}

	// Persistence outlives the inbound request; keep its values, drop its cancellation.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	start := time.Now()
	enriched, err := r.sink.Append(persistCtx, rec)
	if err != nil {
		auditErr := domain.NewAuditError("append state record", err)
		r.logger.Error("failed to record state",
			slog.String("interaction_id", rec.InteractionID),
			slog.String("tenant_id", rec.TenantID),
			slog.String("from_state", string(rec.FromState)),
			slog.String("to_state", string(rec.ToState)),
			slog.String("error", auditErr.Error()))
		return nil, auditErr
	}

	r.logger.Info("state recorded",
		slog.String("interaction_id", rec.InteractionID),
		slog.String("tenant_id", rec.TenantID),
		slog.String("from_state", string(rec.FromState)),
		slog.String("to_state", string(rec.ToState)),
		slog.String("nature", string(rec.Nature)),
		slog.Duration("duration", time.Since(start)))
	return enriched, nil
}

// toPayload keeps structured JSON (object or array) byte-for-byte and turns
// anything else into a JSON string, reporting that it did so.
func toPayload(b []byte) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed) {
		return json.RawMessage(b), false
	}
	s, _ := json.Marshal(string(b))
	return s, true
}

func forwardProvenance(pc *processing.Context) string {
	b, err := json.Marshal(map[string]string{
		"provenance":      pc.Provenance(),
		"processingAgent": pc.TenantID(),
	})
	if err != nil {
		return pc.Provenance()
	}
	return string(b)
}
