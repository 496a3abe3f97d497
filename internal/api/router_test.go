package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tamtunnel/spacecomms/internal/api/handlers"
	"github.com/tamtunnel/spacecomms/internal/api/middleware"
	"github.com/tamtunnel/spacecomms/internal/config"
	"github.com/tamtunnel/spacecomms/internal/ingress"
	"github.com/tamtunnel/spacecomms/internal/logging"
	"github.com/tamtunnel/spacecomms/internal/metrics"
	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/routing"
	"github.com/tamtunnel/spacecomms/internal/seenset"
	"github.com/tamtunnel/spacecomms/internal/store"
)

type noopRegistry struct{}

func (noopRegistry) Peers() []routing.Peer { return nil }

type noopPeerManager struct{}

func (noopPeerManager) List() []model.PeerRecord { return nil }
func (noopPeerManager) Add(model.PeerRecord) error { return nil }
func (noopPeerManager) Remove(string) error        { return nil }

func testRouter(t *testing.T, authEnabled bool) http.Handler {
	t.Helper()
	s := store.New(store.DefaultRetention(), nil)
	m := metrics.New()
	seen := seenset.New(time.Hour, 1000)
	engine := routing.New("node-test", 16, s, seen, noopRegistry{}, m, logging.Discard())
	mediator := ingress.New("node-test", "1.0", 16, engine)

	deps := handlers.Deps{
		NodeID:          "node-test",
		ProtocolVersion: "1.0",
		StartedAt:       time.Now(),
		Store:           s,
		Ingress:         mediator,
		Metrics:         m,
		Peers:           noopPeerManager{},
	}

	auth := middleware.NewAuthenticator(config.AuthConfig{Enabled: authEnabled}, logging.Discard())
	return NewRouter(deps, auth, logging.Discard())
}

func TestRouterHealthIsUnauthenticated(t *testing.T) {
	r := testRouter(t, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterRequiresAuthForWriteRoutes(t *testing.T) {
	r := testRouter(t, true)

	req := httptest.NewRequest(http.MethodPost, "/cdm", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouterAllowsReadWithAuthDisabled(t *testing.T) {
	r := testRouter(t, false)

	req := httptest.NewRequest(http.MethodGet, "/cdms", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}

func TestRouterMetricsRoute(t *testing.T) {
	r := testRouter(t, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
}
