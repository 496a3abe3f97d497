package handlers

import (
	"net/http"
	"time"

	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/store"
)

// Health serves GET /health (spec §6).
type Health struct {
	deps Deps
}

func NewHealth(deps Deps) *Health { return &Health{deps: deps} }

type peerCounts struct {
	Connected int `json:"connected"`
	Total     int `json:"total"`
}

type healthResponse struct {
	Status         string     `json:"status"`
	NodeID         string     `json:"node_id"`
	UptimeSeconds  float64    `json:"uptime_seconds"`
	Peers          peerCounts `json:"peers"`
	ObjectsTracked int        `json:"objects_tracked"`
	CDMsActive     int        `json:"cdms_active"`
	Version        string     `json:"version"`
}

func (h *Health) Get(w http.ResponseWriter, r *http.Request) {
	peers := h.deps.Peers.List()
	connected := 0
	for _, p := range peers {
		if p.Phase == model.PhaseActive {
			connected++
		}
	}

	_, objectTotal := h.deps.Store.ListObjects(store.ListFilter{})
	_, cdmTotal := h.deps.Store.ListCDMs(store.ListFilter{})

	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		NodeID:         h.deps.NodeID,
		UptimeSeconds:  time.Since(h.deps.StartedAt).Seconds(),
		Peers:          peerCounts{Connected: connected, Total: len(peers)},
		ObjectsTracked: objectTotal,
		CDMsActive:     cdmTotal,
		Version:        h.deps.ProtocolVersion,
	})
}
