package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
)

// HTTPLedger posts each entry as JSON to a collector endpoint.
type HTTPLedger struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPLedger creates an HTTP ledger. A nil client uses http.DefaultClient.
func NewHTTPLedger(url string, timeout time.Duration, client *http.Client) *HTTPLedger {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &HTTPLedger{url: url, timeout: timeout, client: client}
}

func (l *HTTPLedger) Record(ctx context.Context, e ports.LedgerEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ledger entry: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("post ledger entry: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ledger collector returned %s", resp.Status)
	}
	return nil
}
