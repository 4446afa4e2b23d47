// Package httphandler holds the HTTP plumbing shared by the web GUI: the
// middleware chain, per-client rate limiting, health and metrics endpoints.
package httphandler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthTimeout bounds the store query of the health endpoint.
const healthTimeout = 2 * time.Second

// ContributionCounter reports how many contributions are stored.
type ContributionCounter interface {
	Count(ctx context.Context) (int, error)
}

// Handler serves the operational endpoints.
type Handler struct {
	counter ContributionCounter
	logger  *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(counter ContributionCounter, logger *slog.Logger) *Handler {
	return &Handler{
		counter: counter,
		logger:  logger,
	}
}

// RegisterRoutes registers /healthz and, when gatherer is non-nil, /metrics.
func RegisterRoutes(mux *http.ServeMux, h *Handler, gatherer prometheus.Gatherer) {
	mux.HandleFunc("GET /healthz", h.Health)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
}

// Health reports whether the store answers queries. It returns 503 when the
// contribution count cannot be read.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)

	count, err := h.counter.Count(ctx)
	if err != nil {
		h.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Time: now})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Contributions: count,
		Time:          now,
	})
}
