package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/store"
)

// Object serves the /objects routes (spec §6, local query surface only;
// objects enter the store exclusively via peer ingest or the re-announce
// sweep, never local POST).
type Object struct {
	deps Deps
}

func NewObject(deps Deps) *Object { return &Object{deps: deps} }

type listObjectsResponse struct {
	Objects []model.Object `json:"objects"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// List serves GET /objects.
func (h *Object) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Limit:  parseInt(q.Get("limit")),
		Offset: parseInt(q.Get("offset")),
	}
	objects, total := h.deps.Store.ListObjects(filter)
	writeJSON(w, http.StatusOK, listObjectsResponse{
		Objects: objects,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	})
}

// Get serves GET /objects/{id}.
func (h *Object) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	obj, ok := h.deps.Store.GetObject(id)
	if !ok || obj.Withdrawn {
		writeError(w, http.StatusNotFound, "INVALID_MESSAGE", "object not found", "id")
		return
	}
	writeJSON(w, http.StatusOK, obj)
}
