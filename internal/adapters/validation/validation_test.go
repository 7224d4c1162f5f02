package validation

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
)

const profiledBundle = `{"resourceType":"Bundle","id":"B1","meta":{"profile":["http://shinny.org/StructureDefinition/SHINNYBundleProfile"]},"entry":[]}`

func request(payload string) *ports.ValidationRequest {
	return &ports.ValidationRequest{
		Payload:       []byte(payload),
		InteractionID: "I1",
		TenantID:      "T1",
		SourceType:    domain.SourceFHIR,
	}
}

func TestPrecheck(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		valid    bool
		wantCode string
	}{
		{"profiled bundle", profiledBundle, true, ""},
		{"string profile", `{"resourceType":"Bundle","meta":{"profile":"p"}}`, true, ""},
		{"not json", `<Bundle/>`, false, CodeStructure},
		{"json array", `[1,2]`, false, CodeStructure},
		{"wrong resource", `{"resourceType":"Patient","meta":{"profile":["p"]}}`, false, CodeInvalid},
		{"no meta", `{"resourceType":"Bundle"}`, false, CodeRequired},
		{"empty profile list", `{"resourceType":"Bundle","meta":{"profile":[]}}`, false, CodeRequired},
		{"blank profile", `{"resourceType":"Bundle","meta":{"profile":[" "]}}`, false, CodeRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewPrecheck().Validate(context.Background(), request(tt.payload))
			if err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if out.Valid != tt.valid {
				t.Errorf("Valid = %v, want %v", out.Valid, tt.valid)
			}
			if out.SessionID != "I1" {
				t.Errorf("SessionID = %q", out.SessionID)
			}
			if tt.valid {
				return
			}
			if len(out.Issues) != 1 || out.Issues[0].Severity != "fatal" || out.Issues[0].Code != tt.wantCode {
				t.Errorf("Issues = %+v, want one fatal %s", out.Issues, tt.wantCode)
			}
		})
	}
}

type stubValidator struct {
	name  string
	out   *domain.ValidationOutcome
	err   error
	calls int
}

func (s *stubValidator) Name() string { return s.name }

func (s *stubValidator) Validate(ctx context.Context, req *ports.ValidationRequest) (*domain.ValidationOutcome, error) {
	s.calls++
	return s.out, s.err
}

func TestChain(t *testing.T) {
	warn := &stubValidator{name: "a", out: &domain.ValidationOutcome{Valid: true, Issues: []domain.Issue{{Severity: "warning"}}}}
	reject := &stubValidator{name: "b", out: &domain.ValidationOutcome{Valid: false, Issues: []domain.Issue{{Severity: "error"}}}}
	never := &stubValidator{name: "c", out: &domain.ValidationOutcome{Valid: true}}

	out, err := NewChain(warn, nil, reject, never).Validate(context.Background(), request(profiledBundle))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if out.Valid {
		t.Error("chain should be invalid after a rejecting validator")
	}
	if len(out.Issues) != 2 {
		t.Errorf("Issues = %+v, want merged warning and error", out.Issues)
	}
	if never.calls != 0 {
		t.Error("validators after a rejection must not run")
	}
}

func TestChain_Error(t *testing.T) {
	broken := &stubValidator{name: "remote", err: errors.New("connection refused")}
	_, err := NewChain(NewPrecheck(), broken).Validate(context.Background(), request(profiledBundle))
	if err == nil || broken.calls != 1 {
		t.Fatalf("expected error from remote validator, got %v", err)
	}
}

func TestWebhookValidator(t *testing.T) {
	var gotTenant, gotAuth, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTenant = r.Header.Get("X-TechBD-Tenant-ID")
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"OperationOutcome":{"resourceType":"OperationOutcome","validationResults":[{"valid":false,"operationOutcome":{"issue":[{"severity":"error","diagnostics":"bad code"}]}}]}}`)
	}))
	defer server.Close()

	v := NewWebhookValidator(WebhookConfig{
		URL:     server.URL,
		Timeout: time.Second,
		Headers: map[string]string{"Authorization": "Bearer t"},
	})
	out, err := v.Validate(context.Background(), request(profiledBundle))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if out.Valid || len(out.Issues) != 1 || out.Issues[0].Diagnostics != "bad code" {
		t.Errorf("unexpected outcome %+v", out)
	}
	if out.SessionID != "I1" {
		t.Errorf("SessionID = %q, want interaction id", out.SessionID)
	}
	if gotTenant != "T1" || gotAuth != "Bearer t" || gotBody != profiledBundle {
		t.Errorf("request: tenant=%q auth=%q body=%q", gotTenant, gotAuth, gotBody)
	}
}

func TestWebhookValidator_Retries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"resourceType":"OperationOutcome","validationResults":[{"valid":true,"operationOutcome":{"issue":[]}}]}`)
	}))
	defer server.Close()

	v := NewWebhookValidator(WebhookConfig{URL: server.URL, Timeout: time.Second, Retries: 2})
	out, err := v.Validate(context.Background(), request(profiledBundle))
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !out.Valid || calls.Load() != 3 {
		t.Errorf("Valid=%v calls=%d", out.Valid, calls.Load())
	}

	calls.Store(-10)
	v = NewWebhookValidator(WebhookConfig{URL: server.URL, Timeout: time.Second, Retries: 1})
	if _, err := v.Validate(context.Background(), request(profiledBundle)); err == nil {
		t.Error("expected error once retries are exhausted")
	}
	if calls.Load() != -8 {
		t.Errorf("calls = %d, want two attempts", calls.Load()+10)
	}
}

func TestWebhookValidator_RetryBackoff(t *testing.T) {
	var (
		calls atomic.Int32
		last  atomic.Int64
		gaps  = make(chan time.Duration, 4)
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UnixNano()
		if prev := last.Swap(now); prev != 0 {
			gaps <- time.Duration(now - prev)
		}
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	v := NewWebhookValidator(WebhookConfig{URL: server.URL, Timeout: time.Second, Retries: 2, Backoff: 40 * time.Millisecond})
	if _, err := v.Validate(context.Background(), request(profiledBundle)); err == nil {
		t.Fatal("expected error once retries are exhausted")
	}
	close(gaps)

	want := []time.Duration{40 * time.Millisecond, 80 * time.Millisecond}
	i := 0
	for gap := range gaps {
		if gap < want[i] {
			t.Errorf("gap before retry %d = %v, want at least %v", i+1, gap, want[i])
		}
		i++
	}
	if i != 2 || calls.Load() != 3 {
		t.Errorf("retries = %d calls = %d, want 2 and 3", i, calls.Load())
	}
}

func TestWebhookValidator_BackoffHonoursContext(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	v := NewWebhookValidator(WebhookConfig{URL: server.URL, Timeout: time.Second, Retries: 5, Backoff: time.Minute})
	start := time.Now()
	if _, err := v.Validate(ctx, request(profiledBundle)); err == nil {
		t.Fatal("expected error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Validate() waited %v after the context ended", elapsed)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestWebhookValidator_BadBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	}))
	defer server.Close()

	v := NewWebhookValidator(WebhookConfig{URL: server.URL, Timeout: time.Second})
	if _, err := v.Validate(context.Background(), request(profiledBundle)); err == nil {
		t.Error("expected decode error")
	}
}
