package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/store"
)

func sampleState() model.StateVector {
	return model.StateVector{
		ReferenceFrame: "GCRF",
		Epoch:          time.Now().UTC(),
		X:              7000, Y: 0, Z: 0,
		VX: 0, VY: 7.5, VZ: 0,
	}
}

func sampleCDM(id string) model.CDM {
	now := time.Now().UTC()
	return model.CDM{
		CDMID:                id,
		Originator:           "node-test",
		CreationDate:         now,
		TCA:                  now.Add(6 * time.Hour),
		MissDistanceM:        500,
		CollisionProbability: 0.0005,
		Object1:              model.ConjunctionObject{ObjectID: "sat-1", ObjectType: model.ObjectTypePayload, State: sampleState()},
		Object2:              model.ConjunctionObject{ObjectID: "sat-2", ObjectType: model.ObjectTypeDebris, State: sampleState()},
	}
}

func TestCDMIngestCreatesRecord(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewCDM(deps)

	req := newRequest(t, http.MethodPost, "/cdm", sampleCDM("CDM-1"))
	w := httptest.NewRecorder()
	h.Ingest(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp ingestResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, store.ResultCreated, resp.Result)
}

func TestCDMIngestRejectsMalformedBody(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewCDM(deps)

	req := httptest.NewRequest(http.MethodPost, "/cdm", strings.NewReader("{not-json"))
	w := httptest.NewRecorder()
	h.Ingest(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCDMIngestRejectsInvalidCDM(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewCDM(deps)

	bad := sampleCDM("")
	req := newRequest(t, http.MethodPost, "/cdm", bad)
	w := httptest.NewRecorder()
	h.Ingest(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCDMGetAndList(t *testing.T) {
	deps, s := newTestDeps(t)
	h := NewCDM(deps)
	cdm := sampleCDM("CDM-2")
	require.Equal(t, store.ResultCreated, s.UpsertCDM(cdm))

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/cdms/CDM-2", nil), "id", "CDM-2")
	w := httptest.NewRecorder()
	h.Get(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/cdms", nil)
	listW := httptest.NewRecorder()
	h.List(listW, listReq)
	require.Equal(t, http.StatusOK, listW.Code)

	var listResp listCDMsResponse
	require.NoError(t, json.NewDecoder(listW.Body).Decode(&listResp))
	require.Equal(t, 1, listResp.Total)
}

func TestCDMGetMissingReturns404(t *testing.T) {
	deps, _ := newTestDeps(t)
	h := NewCDM(deps)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/cdms/missing", nil), "id", "missing")
	w := httptest.NewRecorder()
	h.Get(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCDMWithdrawMarksRecordWithdrawn(t *testing.T) {
	deps, s := newTestDeps(t)
	h := NewCDM(deps)
	cdm := sampleCDM("CDM-3")
	require.Equal(t, store.ResultCreated, s.UpsertCDM(cdm))

	req := withURLParam(newRequest(t, http.MethodDelete, "/cdms/CDM-3", withdrawRequest{Reason: model.ReasonSuperseded}), "id", "CDM-3")
	w := httptest.NewRecorder()
	h.Withdraw(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	getReq := withURLParam(httptest.NewRequest(http.MethodGet, "/cdms/CDM-3", nil), "id", "CDM-3")
	getW := httptest.NewRecorder()
	h.Get(getW, getReq)
	require.Equal(t, http.StatusNotFound, getW.Code, "withdrawn cdm should no longer be served by Get")
}

