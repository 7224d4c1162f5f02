package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/bundle-gateway/internal/core/domain"
	"github.com/tjfontaine/bundle-gateway/internal/core/ports"
	"github.com/tjfontaine/bundle-gateway/internal/pipeline"
	"github.com/tjfontaine/bundle-gateway/internal/processing"
	"github.com/tjfontaine/bundle-gateway/internal/replay"
)

const maxBundleBytes = 32 << 20

// BundleProcessor runs one bundle through the pipeline.
type BundleProcessor interface {
	ProcessBundle(ctx context.Context, payload []byte, params map[string]string) (*pipeline.Response, error)
}

// Replayer re-drives failed interactions.
type Replayer interface {
	Replay(ctx context.Context, interactionID string, params map[string]string) (*replay.Result, error)
	ReplaySync(ctx context.Context, interactionID string, params map[string]string) (*replay.Result, error)
}

// Handlers serves the bundle, replay, and state history endpoints.
type Handlers struct {
	bundles  BundleProcessor
	replayer Replayer
	states   ports.StateReader
	logger   *slog.Logger
}

// NewHandlers creates the HTTP handlers.
func NewHandlers(bundles BundleProcessor, replayer Replayer, states ports.StateReader, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{bundles: bundles, replayer: replayer, states: states, logger: logger}
}

// Routes mounts every endpoint on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Post("/Bundle", h.HandleBundle)
	r.Post("/Bundle/", h.HandleBundle)
	r.Post("/Bundle/$validate", h.HandleBundle)
	r.Post("/Bundle/$validate/", h.HandleBundle)
	r.Route("/interactions/{interactionID}", func(r chi.Router) {
		r.Get("/states", h.HandleStates)
		r.Post("/replay", h.HandleReplay)
	})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleBundle accepts a bundle for validation and, unless the path is a
// $validate path, forwarding.
func (h *Handlers) HandleBundle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBundleBytes))
	if err != nil {
		AddError(ctx, err)
		writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", err.Error())
		return
	}

	params := BundleParams(r)
	AddLogField(ctx, "interaction_id", params[processing.ParamInteractionID])
	AddLogField(ctx, "tenant_id", params[processing.ParamTenantID])

	resp, err := h.bundles.ProcessBundle(ctx, payload, params)
	if err != nil {
		AddError(ctx, err)
		writePipelineError(w, err)
		return
	}

	AddLogField(ctx, "strategy", resp.Strategy)
	w.Header().Set(HeaderInteractionID, resp.InteractionID)
	writeJSON(w, http.StatusOK, resp.Document)
}

// HandleReplay re-drives a failed interaction. With ?wait=true the response
// carries the delivery status instead of 202 Accepted.
func (h *Handlers) HandleReplay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	interactionID := chi.URLParam(r, "interactionID")
	AddLogField(ctx, "interaction_id", interactionID)

	params := RequestParams(r)
	delete(params, processing.ParamInteractionID)
	delete(params, processing.ParamCorrelationID)
	delete(params, processing.ParamRequestURI)

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	var (
		result *replay.Result
		err    error
	)
	if wait {
		result, err = h.replayer.ReplaySync(ctx, interactionID, params)
	} else {
		result, err = h.replayer.Replay(ctx, interactionID, params)
	}
	if err != nil {
		AddError(ctx, err)
		writePipelineError(w, err)
		return
	}

	if !wait {
		writeJSON(w, http.StatusAccepted, result)
		return
	}
	body := map[string]any{
		"interactionId":       result.InteractionID,
		"tenantId":            result.TenantID,
		"strategy":            result.Strategy,
		"forwardedFromRecord": result.ForwardedFrom,
	}
	if d := result.Delivery; d != nil {
		body["deliveryStatus"] = d.Status
		body["statusCode"] = d.StatusCode
		if d.Err != nil {
			body["error"] = d.Err.Error()
		}
	}
	writeJSON(w, http.StatusOK, body)
}

type statesResponse struct {
	InteractionID string                `json:"interactionId"`
	Records       []*domain.StateRecord `json:"records"`
	PathValid     bool                  `json:"pathValid"`
	PathError     string                `json:"pathError,omitempty"`
}

// HandleStates lists an interaction's audit trail and checks it is a walk
// through the lifecycle graph.
func (h *Handlers) HandleStates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	interactionID := chi.URLParam(r, "interactionID")

	records, err := h.states.ListStates(ctx, interactionID)
	if err != nil {
		AddError(ctx, err)
		writeError(w, http.StatusInternalServerError, "storage_error", "failed to load state history")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "no states recorded for interaction "+interactionID)
		return
	}

	resp := statesResponse{InteractionID: interactionID, Records: records, PathValid: true}
	if err := domain.ValidatePath(domain.Transitions(records)); err != nil {
		resp.PathValid = false
		resp.PathError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	var body errorBody
	body.Error.Type = errType
	body.Error.Message = message
	writeJSON(w, status, body)
}

func writePipelineError(w http.ResponseWriter, err error) {
	var pe *domain.PipelineError
	if errors.As(err, &pe) {
		writeError(w, pe.HTTPStatusCode(), string(pe.Kind), pe.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}
