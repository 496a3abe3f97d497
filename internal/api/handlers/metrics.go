package handlers

import (
	"net/http"
	"time"
)

// MetricsHandler serves GET /metrics (spec §6 custom JSON shape, not the
// Prometheus exposition format promhttp would produce).
type MetricsHandler struct {
	deps Deps
}

func NewMetrics(deps Deps) *MetricsHandler { return &MetricsHandler{deps: deps} }

func (h *MetricsHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Metrics.Snapshot(time.Since(h.deps.StartedAt).Seconds())
	writeJSON(w, http.StatusOK, snap)
}
