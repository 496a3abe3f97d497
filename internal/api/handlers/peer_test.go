package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamtunnel/spacecomms/internal/model"
)

var errPeerNotFound = errors.New("peer not configured")

func TestPeerList(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Peers.(*fakePeerManager).records = []model.PeerRecord{
		{PeerID: "node-b", Address: "node-b:9000", Phase: model.PhaseActive},
	}
	h := NewPeer(deps)

	req := httptest.NewRequest(http.MethodGet, "/peers", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var recs []model.PeerRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&recs))
	require.Len(t, recs, 1)
	require.Equal(t, "node-b", recs[0].PeerID)
}

func TestPeerAddRegistersPeer(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewPeer(deps)

	req := newRequest(t, http.MethodPost, "/peers", addPeerRequest{ID: "node-c", Address: "node-c:9000"})
	w := httptest.NewRecorder()
	h.Add(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, deps.Peers.(*fakePeerManager).records, 1)
}

func TestPeerAddRequiresIDAndAddress(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewPeer(deps)

	req := newRequest(t, http.MethodPost, "/peers", addPeerRequest{ID: "node-c"})
	w := httptest.NewRecorder()
	h.Add(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPeerRemove(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Peers.(*fakePeerManager).records = []model.PeerRecord{{PeerID: "node-b", Address: "node-b:9000"}}
	h := NewPeer(deps)

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/peers/node-b", nil), "id", "node-b")
	w := httptest.NewRecorder()
	h.Remove(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestPeerRemoveUnknownReturns404(t *testing.T) {
	deps, _ := newTestDeps(t)
	deps.Peers.(*fakePeerManager).rmErr = errPeerNotFound
	h := NewPeer(deps)

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/peers/missing", nil), "id", "missing")
	w := httptest.NewRecorder()
	h.Remove(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}
