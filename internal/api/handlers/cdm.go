package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/store"
	"github.com/tamtunnel/spacecomms/internal/validate"
)

// CDM serves the /cdm and /cdms routes (spec §6).
type CDM struct {
	deps Deps
}

func NewCDM(deps Deps) *CDM { return &CDM{deps: deps} }

type ingestResponse struct {
	Result     store.Result `json:"result"`
	Propagated []string     `json:"propagated_to"`
}

// Ingest serves POST /cdm.
func (h *CDM) Ingest(w http.ResponseWriter, r *http.Request) {
	var cdm model.CDM
	if err := json.NewDecoder(r.Body).Decode(&cdm); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", "malformed CDM body: "+err.Error(), "")
		return
	}

	if err := validate.CDM(cdm); err != nil {
		if ve, ok := err.(*validate.Error); ok {
			writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", ve.Message, ve.Field)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error(), "")
		return
	}

	out, err := h.deps.Ingress.IngestLocal(model.MessageCDMAnnounce, cdm)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error(), "")
		return
	}
	if out.Conflict {
		writeError(w, http.StatusConflict, "INVALID_MESSAGE", "conflicting CDM already recorded for this creation_date", "creation_date")
		return
	}

	propagated := out.Forwarded
	if propagated == nil {
		propagated = []string{}
	}
	writeJSON(w, http.StatusCreated, ingestResponse{Result: out.StoreResult, Propagated: propagated})
}

type listCDMsResponse struct {
	CDMs   []model.CDM `json:"cdms"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// List serves GET /cdms?object_id&min_probability&limit&offset.
func (h *CDM) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		ObjectID:       q.Get("object_id"),
		MinProbability: parseFloat(q.Get("min_probability")),
		Limit:          parseInt(q.Get("limit")),
		Offset:         parseInt(q.Get("offset")),
	}

	cdms, total := h.deps.Store.ListCDMs(filter)
	writeJSON(w, http.StatusOK, listCDMsResponse{
		CDMs:   cdms,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// Get serves GET /cdms/{id}.
func (h *CDM) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cdm, ok := h.deps.Store.GetCDM(id)
	if !ok || cdm.Withdrawn {
		writeError(w, http.StatusNotFound, "INVALID_MESSAGE", "cdm not found", "id")
		return
	}
	writeJSON(w, http.StatusOK, cdm)
}

type withdrawRequest struct {
	Reason       model.WithdrawReason `json:"reason"`
	SupersededBy string               `json:"superseded_by,omitempty"`
}

type withdrawWirePayload struct {
	CDMID         string               `json:"cdm_id,omitempty"`
	ObjectID      string               `json:"object_id,omitempty"`
	EffectiveTime time.Time            `json:"effective_time"`
	Reason        model.WithdrawReason `json:"reason"`
}

type withdrawResponse struct {
	Reason       model.WithdrawReason `json:"reason"`
	SupersededBy string               `json:"superseded_by,omitempty"`
}

// Withdraw serves DELETE /cdms/{id}.
func (h *CDM) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req withdrawRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", "malformed withdraw body: "+err.Error(), "")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = model.ReasonSuperseded
	}

	if _, err := h.deps.Ingress.IngestLocal(model.MessageCDMWithdraw, withdrawWirePayload{
		CDMID:         id,
		EffectiveTime: time.Now().UTC(),
		Reason:        req.Reason,
	}); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_MESSAGE", err.Error(), "")
		return
	}

	writeJSON(w, http.StatusOK, withdrawResponse{Reason: req.Reason, SupersededBy: req.SupersededBy})
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
