package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/store"
)

// Maneuver serves the /maneuvers routes (spec §6 "Announce maneuver").
type Maneuver struct {
	deps Deps
}

func NewManeuver(deps Deps) *Maneuver { return &Maneuver{deps: deps} }

// Announce serves POST /maneuvers, submitting a MANEUVER_INTENT.
func (h *Maneuver) Announce(w http.ResponseWriter, r *http.Request) {
	var m model.Maneuver
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", "malformed maneuver body: "+err.Error(), "")
		return
	}
	if m.ManeuverID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", "maneuver_id is required", "maneuver_id")
		return
	}
	if m.Status == "" {
		m.Status = model.ManeuverPlanned
	}

	out, err := h.deps.Ingress.IngestLocal(model.MessageManeuverIntent, m)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error(), "")
		return
	}
	writeJSON(w, http.StatusCreated, ingestResponse{Result: out.StoreResult, Propagated: orEmpty(out.Forwarded)})
}

type maneuverStatusPatch struct {
	Status       model.ManeuverStatusValue `json:"status"`
	ActualStart  *time.Time                `json:"actual_start,omitempty"`
	ActualEnd    *time.Time                `json:"actual_end,omitempty"`
	ActualDeltaV *float64                  `json:"actual_delta_v_m_s,omitempty"`
}

// Update serves PATCH /maneuvers/{id}, submitting a MANEUVER_STATUS built
// from the currently known record plus the patched fields (the store
// upsert replaces the whole record, so unpatched fields are preserved
// here rather than zeroed).
func (h *Maneuver) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	existing, ok := h.deps.Store.GetManeuver(id)
	if !ok {
		writeError(w, http.StatusNotFound, "INVALID_MESSAGE", "maneuver not found", "id")
		return
	}

	var patch maneuverStatusPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", "malformed status patch: "+err.Error(), "")
		return
	}
	if patch.Status == "" {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", "status is required", "status")
		return
	}

	updated := existing
	updated.Status = patch.Status
	if patch.ActualStart != nil {
		updated.ActualStart = *patch.ActualStart
	}
	if patch.ActualEnd != nil {
		updated.ActualEnd = *patch.ActualEnd
	}
	if patch.ActualDeltaV != nil {
		updated.ActualDeltaV = *patch.ActualDeltaV
	}

	out, err := h.deps.Ingress.IngestLocal(model.MessageManeuverStatus, updated)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error(), "")
		return
	}
	if out.StoreResult == store.ResultStale {
		writeError(w, http.StatusConflict, "INVALID_MESSAGE", "status transition is not monotonic", "status")
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{Result: out.StoreResult, Propagated: orEmpty(out.Forwarded)})
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
