package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tamtunnel/spacecomms/internal/ingress"
	"github.com/tamtunnel/spacecomms/internal/logging"
	"github.com/tamtunnel/spacecomms/internal/metrics"
	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/routing"
	"github.com/tamtunnel/spacecomms/internal/seenset"
	"github.com/tamtunnel/spacecomms/internal/store"
)

// emptyRegistry satisfies routing.Registry with no peers, since handler
// tests exercise local ingest and query, never forwarding.
type emptyRegistry struct{}

func (emptyRegistry) Peers() []routing.Peer { return nil }

type fakePeerManager struct {
	records []model.PeerRecord
	addErr  error
	rmErr   error
}

func (f *fakePeerManager) List() []model.PeerRecord { return f.records }

func (f *fakePeerManager) Add(rec model.PeerRecord) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakePeerManager) Remove(peerID string) error {
	if f.rmErr != nil {
		return f.rmErr
	}
	for i, r := range f.records {
		if r.PeerID == peerID {
			f.records = append(f.records[:i], f.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func newTestDeps(t *testing.T) (Deps, *store.Store) {
	t.Helper()
	s := store.New(store.DefaultRetention(), nil)
	m := metrics.New()
	seen := seenset.New(time.Hour, 1000)
	engine := routing.New("node-test", 16, s, seen, emptyRegistry{}, m, logging.Discard())
	mediator := ingress.New("node-test", "1.0", 16, engine)

	return Deps{
		NodeID:          "node-test",
		ProtocolVersion: "1.0",
		StartedAt:       time.Now().Add(-time.Minute),
		Store:           s,
		Ingress:         mediator,
		Metrics:         m,
		Peers:           &fakePeerManager{},
	}, s
}

// withURLParam attaches a chi route param to a request the way chi's
// router would when dispatching through a mux, so handlers calling
// chi.URLParam(r, name) work the same in tests as in production.
func withURLParam(r *http.Request, name, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(name, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func newRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	if body == nil {
		return httptest.NewRequest(method, target, nil)
	}
	return httptest.NewRequest(method, target, jsonBody(t, body))
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal request body: %v", err)
	}
	return bytes.NewReader(b)
}
