package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/store"
)

func TestHealthReportsPeerCountsAndStoreTotals(t *testing.T) {
	deps, s := newTestDeps(t)
	deps.Peers.(*fakePeerManager).records = []model.PeerRecord{
		{PeerID: "node-b", Phase: model.PhaseActive},
		{PeerID: "node-c", Phase: model.PhaseDialing},
	}
	require.Equal(t, store.ResultCreated, s.UpsertObject(sampleObject("NORAD-9")))

	h := NewHealth(deps)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.Get(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp healthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, 1, resp.Peers.Connected)
	require.Equal(t, 2, resp.Peers.Total)
	require.Equal(t, 1, resp.ObjectsTracked)
}
