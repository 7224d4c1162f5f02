package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
)

const (
	maxOutcomeBytes = 16 << 20

	// DefaultRetryBackoff is the wait before the first retry; it doubles
	// on each further attempt.
	DefaultRetryBackoff = 200 * time.Millisecond
)

// WebhookConfig configures an external validator endpoint.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration
	Retries int
	// Backoff overrides DefaultRetryBackoff.
	Backoff time.Duration
	Headers map[string]string
	Client  *http.Client
}

// WebhookValidator posts the bundle to an external validation service and
// decodes its OperationOutcome.
type WebhookValidator struct {
	url     string
	retries int
	backoff time.Duration
	headers map[string]string
	client  *http.Client
}

// NewWebhookValidator creates a webhook validator.
func NewWebhookValidator(cfg WebhookConfig) *WebhookValidator {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &WebhookValidator{
		url:     cfg.URL,
		retries: cfg.Retries,
		backoff: backoff,
		headers: cfg.Headers,
		client:  client,
	}
}

func (w *WebhookValidator) Name() string { return "webhook" }

// Validate calls the endpoint, retrying transport and status failures with
// exponential backoff. An error means no outcome could be obtained.
func (w *WebhookValidator) Validate(ctx context.Context, req *ports.ValidationRequest) (*domain.ValidationOutcome, error) {
	var lastErr error
	wait := w.backoff
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, wait); err != nil {
				break
			}
			wait *= 2
		}
		out, err := w.doRequest(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("validator %s: %w", w.url, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (w *WebhookValidator) doRequest(ctx context.Context, req *ports.ValidationRequest) (*domain.ValidationOutcome, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(req.Payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-TechBD-Interaction-ID", req.InteractionID)
	httpReq.Header.Set("X-TechBD-Tenant-ID", req.TenantID)
	httpReq.Header.Set("X-TechBD-Source-Type", string(req.SourceType))
	for k, v := range w.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := w.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOutcomeBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("returned status %d: %s", resp.StatusCode, string(body))
	}

	out, err := decodeOutcome(body)
	if err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		out.SessionID = req.InteractionID
	}
	return out, nil
}

// decodeOutcome accepts the bare outcome or one wrapped in an
// {"OperationOutcome": ...} envelope.
func decodeOutcome(body []byte) (*domain.ValidationOutcome, error) {
	var envelope struct {
		OperationOutcome json.RawMessage `json:"OperationOutcome"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	if len(envelope.OperationOutcome) > 0 {
		body = envelope.OperationOutcome
	}
	var out domain.ValidationOutcome
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode outcome: %w", err)
	}
	return &out, nil
}

var _ ports.Validator = (*WebhookValidator)(nil)
