package api

import (
	"net/http"
	"time"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsHandler reports pipeline counters plus handler uptime.
type StatsHandler struct {
	statsProvider StatsProvider
	startedAt     time.Time
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider, startedAt: time.Now()}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	stats := h.statsProvider.GetStats()
	out := make(map[string]interface{}, len(stats)+1)
	for k, v := range stats {
		out[k] = v
	}
	out["uptimeSeconds"] = time.Since(h.startedAt).Seconds()
	writeJSON(w, http.StatusOK, out)
}
