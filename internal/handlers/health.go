package handlers

import (
	"net/http"
	"sort"
	"time"

	"github.com/vastra-shop/api/internal/domain"
	"github.com/vastra-shop/api/internal/services"
)

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises a HealthHandlers instance.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the system service used by readiness checks.
func WithHealthSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthBuildInfo sets the build metadata reported by the liveness probe.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs probe handlers with the provided options.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	handlers := &HealthHandlers{
		clock: time.Now,
		build: services.BuildInfo{StartedAt: time.Now().UTC()},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handlers)
		}
	}
	return handlers
}

// Healthz reports process liveness without touching any dependency.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	uptime := time.Duration(0)
	if !h.build.StartedAt.IsZero() && now.After(h.build.StartedAt) {
		uptime = now.Sub(h.build.StartedAt)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":      domain.HealthStatusOK,
		"uptime":      uptime.String(),
		"version":     h.build.Version,
		"commitSha":   h.build.CommitSHA,
		"environment": h.build.Environment,
		"timestamp":   now.Format(time.RFC3339Nano),
	})
}

type readyCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

// Readyz reports dependency readiness. Any non-ok check yields 503.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{
			"status": domain.HealthStatusOK,
			"checks": map[string]readyCheckPayload{},
		})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status":  domain.HealthStatusError,
			"details": []string{"system: " + err.Error()},
		})
		return
	}

	checks := make(map[string]readyCheckPayload, len(report.Checks))
	details := make([]string, 0)
	for name, check := range report.Checks {
		checks[name] = readyCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
		if check.Status != domain.HealthStatusOK {
			detail := check.Error
			if detail == "" {
				detail = check.Status
			}
			details = append(details, name+": "+detail)
		}
	}
	sort.Strings(details)

	status := report.Status
	if status == "" {
		status = domain.HealthStatusOK
	}
	code := http.StatusOK
	if status != domain.HealthStatusOK {
		code = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, code, map[string]any{
		"status":      status,
		"checks":      checks,
		"details":     details,
		"version":     report.Version,
		"commitSha":   report.CommitSHA,
		"environment": report.Environment,
		"uptime":      report.Uptime.String(),
		"generatedAt": formatTime(report.GeneratedAt),
	})
}
