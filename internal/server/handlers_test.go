package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/bundle-gateway/internal/adapters/storage/memory"
	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/pipeline"
	"github.com/tjfontaine/bundle-gateway/internal/processing"
	"github.com/tjfontaine/bundle-gateway/internal/replay"
)

type fakeProcessor struct {
	payload string
	params  map[string]string
	resp    *pipeline.Response
	err     error
}

func (f *fakeProcessor) ProcessBundle(ctx context.Context, payload []byte, params map[string]string) (*pipeline.Response, error) {
	f.payload = string(payload)
	f.params = params
	return f.resp, f.err
}

type fakeReplayer struct {
	id     string
	params map[string]string
	sync   bool
	err    error
}

func (f *fakeReplayer) Replay(ctx context.Context, id string, params map[string]string) (*replay.Result, error) {
	f.id, f.params = id, params
	if f.err != nil {
		return nil, f.err
	}
	return &replay.Result{InteractionID: id, TenantID: "T1", Strategy: "no-auth", ForwardedFrom: "rec-1"}, nil
}

func (f *fakeReplayer) ReplaySync(ctx context.Context, id string, params map[string]string) (*replay.Result, error) {
	f.sync = true
	r, err := f.Replay(ctx, id, params)
	if r != nil {
		r.Delivery = &domain.DeliveryResult{Status: domain.DeliverySuccess, StatusCode: 200}
	}
	return r, err
}

func newRouter(p BundleProcessor, rp Replayer, store *memory.Store) http.Handler {
	r := chi.NewRouter()
	NewHandlers(p, rp, store, slog.New(slog.NewTextHandler(io.Discard, nil))).Routes(r)
	return r
}

func TestHandleBundle(t *testing.T) {
	p := &fakeProcessor{resp: &pipeline.Response{
		InteractionID: "I-1",
		Document:      map[string]any{"OperationOutcome": map[string]any{"resourceType": "OperationOutcome"}},
		Forwarded:     true,
	}}
	h := newRouter(p, &fakeReplayer{}, memory.New(nil))

	req := httptest.NewRequest(http.MethodPost, "/Bundle", strings.NewReader(`{"resourceType":"Bundle"}`))
	req.Header.Set(HeaderTenantID, "T1")
	req.Header.Set(HeaderInteractionID, "I-1")
	req.Header.Set(HeaderTransportStrategy, "mtls-secrets")
	req.Header.Set(HeaderSeverityLevel, "warning")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if rec.Header().Get(HeaderInteractionID) != "I-1" {
		t.Errorf("interaction header = %q", rec.Header().Get(HeaderInteractionID))
	}
	if !strings.Contains(rec.Body.String(), `"OperationOutcome"`) {
		t.Errorf("body = %s", rec.Body)
	}
	want := map[string]string{
		processing.ParamTenantID:                "T1",
		processing.ParamInteractionID:           "I-1",
		processing.ParamTransportStrategy:       "mtls-secrets",
		processing.ParamValidationSeverityLevel: "warning",
		processing.ParamRequestURI:              "/Bundle",
	}
	for k, v := range want {
		if p.params[k] != v {
			t.Errorf("params[%s] = %q, want %q", k, p.params[k], v)
		}
	}
	if p.payload != `{"resourceType":"Bundle"}` {
		t.Errorf("payload = %q", p.payload)
	}
}

func TestHandleBundle_GeneratesInteractionID(t *testing.T) {
	p := &fakeProcessor{resp: &pipeline.Response{Document: map[string]any{}}}
	h := newRouter(p, &fakeReplayer{}, memory.New(nil))

	req := httptest.NewRequest(http.MethodPost, "/Bundle/$validate", strings.NewReader(`{}`))
	req.Header.Set(HeaderTenantID, "T1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if p.params[processing.ParamInteractionID] == "" {
		t.Error("expected a generated interaction id")
	}
	if p.params[processing.ParamRequestURI] != processing.ValidateURI {
		t.Errorf("request uri = %q", p.params[processing.ParamRequestURI])
	}

	req = httptest.NewRequest(http.MethodPost, "/Bundle", strings.NewReader(`{}`))
	req.Header.Set(HeaderTenantID, "T1")
	req.Header.Set(HeaderCorrelationID, "C-1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if _, ok := p.params[processing.ParamInteractionID]; ok {
		t.Error("a correlation id should stand in for the interaction id")
	}
}

func TestHandleBundle_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"configuration", domain.NewConfigurationError("missing required parameter TENANT_ID"), http.StatusBadRequest, "configuration"},
		{"transport", domain.NewTransportError("no credentials", nil), http.StatusBadGateway, "transport"},
		{"plain", io.ErrUnexpectedEOF, http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(&fakeProcessor{err: tt.err}, &fakeReplayer{}, memory.New(nil))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/Bundle", strings.NewReader(`{}`)))

			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error.Type != tt.kind {
				t.Errorf("error type = %q, want %q", body.Error.Type, tt.kind)
			}
		})
	}
}

func TestHandleReplay(t *testing.T) {
	rp := &fakeReplayer{}
	h := newRouter(&fakeProcessor{}, rp, memory.New(nil))

	req := httptest.NewRequest(http.MethodPost, "/interactions/I-7/replay", nil)
	req.Header.Set(HeaderTransportStrategy, "no-auth")
	req.Header.Set(HeaderInteractionID, "ignored")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if rp.id != "I-7" || rp.sync {
		t.Errorf("replayed %q sync=%v", rp.id, rp.sync)
	}
	if rp.params[processing.ParamTransportStrategy] != "no-auth" {
		t.Errorf("override not passed: %v", rp.params)
	}
	if _, ok := rp.params[processing.ParamInteractionID]; ok {
		t.Error("interaction id comes from the path, not headers")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions/I-7/replay?wait=true", nil))
	if rec.Code != http.StatusOK || !rp.sync {
		t.Fatalf("status = %d sync=%v", rec.Code, rp.sync)
	}
	if !strings.Contains(rec.Body.String(), `"deliveryStatus":"SUCCESS"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestHandleReplay_NotFailed(t *testing.T) {
	rp := &fakeReplayer{err: domain.NewConfigurationError("interaction I-7 is in state COMPLETE")}
	h := newRouter(&fakeProcessor{}, rp, memory.New(nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/interactions/I-7/replay", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStates(t *testing.T) {
	store := memory.New(nil)
	ctx := context.Background()
	for _, rec := range []*domain.StateRecord{
		{ID: "r1", Interaction: domain.Interaction{InteractionID: "I-3", TenantID: "T1"}, FromState: domain.StateNone, ToState: domain.StateAcceptBundle, Payload: []byte(`{"a":1}`)},
		{ID: "r2", Interaction: domain.Interaction{InteractionID: "I-3", TenantID: "T1"}, FromState: domain.StateAcceptBundle, ToState: domain.StateDisposition},
		{ID: "r3", Interaction: domain.Interaction{InteractionID: "I-4", TenantID: "T1"}, FromState: domain.StateNone, ToState: domain.StateForward},
		{ID: "r4", Interaction: domain.Interaction{InteractionID: "I-5", TenantID: "T1"}, FromState: domain.StateForward, ToState: domain.StateComplete},
	} {
		if _, err := store.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	h := newRouter(&fakeProcessor{}, &fakeReplayer{}, store)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interactions/I-3/states", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body statesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Records) != 2 || !body.PathValid {
		t.Errorf("records=%d valid=%v", len(body.Records), body.PathValid)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interactions/I-4/states", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.PathValid || body.PathError == "" {
		t.Error("NONE -> FORWARD should be reported as an invalid path")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interactions/I-5/states", nil))
	body = statesResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.PathValid || body.PathError == "" {
		t.Error("a history that does not start at NONE should be reported as an invalid path")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interactions/missing/states", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newRouter(&fakeProcessor{}, &fakeReplayer{}, memory.New(nil))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}
}
