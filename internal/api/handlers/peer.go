package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tamtunnel/spacecomms/internal/model"
)

// Peer serves the /peers routes (spec §6; mutation requires admin
// permission, enforced by the router's middleware stack, not here).
type Peer struct {
	deps Deps
}

func NewPeer(deps Deps) *Peer { return &Peer{deps: deps} }

// List serves GET /peers.
func (h *Peer) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Peers.List())
}

type addPeerRequest struct {
	ID        string           `json:"id"`
	Address   string           `json:"address"`
	AuthToken string           `json:"auth_token,omitempty"`
	Policies  model.PeerPolicy `json:"policies"`
}

// Add serves POST /peers.
func (h *Peer) Add(w http.ResponseWriter, r *http.Request) {
	var req addPeerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", "malformed peer descriptor: "+err.Error(), "")
		return
	}
	if req.ID == "" || req.Address == "" {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", "id and address are required", "")
		return
	}

	rec := model.PeerRecord{
		PeerID:    req.ID,
		Address:   req.Address,
		AuthToken: req.AuthToken,
		Policy:    req.Policies,
		Phase:     model.PhaseIdle,
	}
	if err := h.deps.Peers.Add(rec); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error(), "id")
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// Remove serves DELETE /peers/{id}.
func (h *Peer) Remove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Peers.Remove(id); err != nil {
		writeError(w, http.StatusNotFound, "INVALID_MESSAGE", err.Error(), "id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
