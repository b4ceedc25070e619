package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vastra-shop/api/internal/platform/httpx"
	"github.com/vastra-shop/api/internal/services"
)

// InternalHandlers serves service-to-service endpoints. The /internal group
// is guarded by HMAC middleware configured at router construction.
type InternalHandlers struct {
	system services.SystemService
}

// NewInternalHandlers constructs a new InternalHandlers instance.
func NewInternalHandlers(system services.SystemService) *InternalHandlers {
	return &InternalHandlers{system: system}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/counters/{counterID}:next", h.nextCounterValue)
	r.Get("/health", h.healthReport)
}

type nextCounterRequest struct {
	Step int64 `json:"step"`
}

func (h *InternalHandlers) nextCounterValue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_service_unavailable", "system service unavailable", http.StatusServiceUnavailable))
		return
	}

	counterID := strings.TrimSpace(chi.URLParam(r, "counterID"))
	if counterID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "counter id is required", http.StatusBadRequest))
		return
	}

	var payload nextCounterRequest
	if body, err := readLimitedBody(r, 4*1024); err == nil {
		if err := json.Unmarshal(body, &payload); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
			return
		}
	}

	value, err := h.system.NextCounterValue(ctx, services.CounterCommand{
		CounterID: counterID,
		Step:      payload.Step,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to advance counter", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"counter_id": counterID,
		"value":      value,
	})
}

func (h *InternalHandlers) healthReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.system == nil {
		httpx.WriteError(ctx, w, httpx.NewError("system_service_unavailable", "system service unavailable", http.StatusServiceUnavailable))
		return
	}

	report, err := h.system.HealthReport(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unable to collect health report", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":       report.Status,
		"version":      report.Version,
		"commit_sha":   report.CommitSHA,
		"environment":  report.Environment,
		"uptime":       report.Uptime.String(),
		"generated_at": formatTime(report.GeneratedAt),
	})
}
