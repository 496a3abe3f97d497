package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/store"
)

func sampleManeuver(id string) model.Maneuver {
	return model.Maneuver{
		ManeuverID:      id,
		Originator:      "node-test",
		Type:            model.ManeuverCollisionAvoidance,
		PlannedStart:    time.Now().UTC().Add(time.Hour),
		PlannedDuration: 10 * time.Minute,
		PlannedDeltaV:   1.2,
		Status:          model.ManeuverPlanned,
	}
}

func TestManeuverAnnounceCreatesRecord(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewManeuver(deps)

	req := newRequest(t, http.MethodPost, "/maneuvers", sampleManeuver("MNV-1"))
	w := httptest.NewRecorder()
	h.Announce(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp ingestResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, store.ResultCreated, resp.Result)
}

func TestManeuverAnnounceRequiresID(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewManeuver(deps)

	m := sampleManeuver("")
	req := newRequest(t, http.MethodPost, "/maneuvers", m)
	w := httptest.NewRecorder()
	h.Announce(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManeuverUpdateAppliesMonotonicTransition(t *testing.T) {
	deps, s := newTestDeps(t)
	h := NewManeuver(deps)
	require.Equal(t, store.ResultCreated, s.UpsertManeuver(sampleManeuver("MNV-2")))

	patch := maneuverStatusPatch{Status: model.ManeuverInProgress}
	req := withURLParam(newRequest(t, http.MethodPatch, "/maneuvers/MNV-2", patch), "id", "MNV-2")
	w := httptest.NewRecorder()
	h.Update(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	updated, ok := s.GetManeuver("MNV-2")
	require.True(t, ok)
	require.Equal(t, model.ManeuverInProgress, updated.Status)
}

func TestManeuverUpdateRejectsNonMonotonicTransition(t *testing.T) {
	deps, s := newTestDeps(t)
	h := NewManeuver(deps)
	m := sampleManeuver("MNV-3")
	m.Status = model.ManeuverCompleted
	require.Equal(t, store.ResultCreated, s.UpsertManeuver(m))

	patch := maneuverStatusPatch{Status: model.ManeuverInProgress}
	req := withURLParam(newRequest(t, http.MethodPatch, "/maneuvers/MNV-3", patch), "id", "MNV-3")
	w := httptest.NewRecorder()
	h.Update(w, req)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestManeuverUpdateMissingReturns404(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewManeuver(deps)

	patch := maneuverStatusPatch{Status: model.ManeuverInProgress}
	req := withURLParam(newRequest(t, http.MethodPatch, "/maneuvers/missing", patch), "id", "missing")
	w := httptest.NewRecorder()
	h.Update(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}
