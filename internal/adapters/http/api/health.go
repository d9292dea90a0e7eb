package api

import (
	"net/http"

	"github.com/minkalla/valyze/pkg/logger"
	"github.com/minkalla/valyze/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "Valyze MVP"

// RootMessage is reported by GET /.
const RootMessage = "Minkalla Valyze Engine is running."

// HealthHandler serves liveness and metrics endpoints.
type HealthHandler struct {
	logger  logger.Logger
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(l logger.Logger) *HealthHandler {
	return &HealthHandler{
		logger:  l,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /health requests.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.logger.Info(r.Context(), "health check endpoint was called")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": ServiceName})
}

// HandleRoot handles GET / requests.
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": RootMessage})
}

// HandleMetrics serves the service registry in Prometheus exposition format.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
