package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/ekpsearch/pkg/metrics"
)

// ReadinessProvider reports whether searches can be served.
type ReadinessProvider interface {
	Ready() bool
}

// HealthHandler handles health and readiness requests.
type HealthHandler struct {
	ready   ReadinessProvider
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(ready ReadinessProvider) *HealthHandler {
	return &HealthHandler{
		ready:   ready,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleMetrics handles GET /healthz and GET /metrics with the Prometheus
// exposition of the service registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

type readyResponse struct {
	Ready bool `json:"ready"`
}

// HandleReady handles GET /readyz: 200 once an index is published.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, _ *http.Request) {
	if !h.ready.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, readyResponse{Ready: false})
		return
	}
	writeJSON(w, http.StatusOK, readyResponse{Ready: true})
}
