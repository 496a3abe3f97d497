// Package api implements the local ingest/query surface (spec §6): health,
// CDM/object query and ingest, peer management, maneuver announce/patch,
// and metrics, routed with go-chi and guarded by a bearer-token tiered
// authorization middleware, grounded on dittofs's pkg/controlplane/api
// router (RequestID/RealIP/request-logger/Recoverer/Timeout middleware
// stack, nested route groups gated by permission middleware).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tamtunnel/spacecomms/internal/api/handlers"
	"github.com/tamtunnel/spacecomms/internal/api/middleware"
	"github.com/tamtunnel/spacecomms/internal/logging"
)

// NewRouter builds the chi router for the local API surface.
//
// Routes:
//   - GET    /health                 - unauthenticated status probe
//   - POST   /cdm                    - ingest a CDM (write)
//   - GET    /cdms, /cdms/{id}       - query CDMs (read)
//   - DELETE /cdms/{id}              - withdraw a CDM (write)
//   - GET    /objects, /objects/{id} - query objects (read)
//   - GET    /peers                  - query the peer table (read)
//   - POST   /peers, DELETE /peers/{id} - mutate the peer table (admin)
//   - POST   /maneuvers              - announce a maneuver (write)
//   - PATCH  /maneuvers/{id}         - update maneuver status (write)
//   - GET    /metrics                - counter snapshot (read)
func NewRouter(deps handlers.Deps, auth *middleware.Authenticator, log logging.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	health := handlers.NewHealth(deps)
	cdm := handlers.NewCDM(deps)
	object := handlers.NewObject(deps)
	peer := handlers.NewPeer(deps)
	maneuver := handlers.NewManeuver(deps)
	metricsHandler := handlers.NewMetrics(deps)

	r.Get("/health", health.Get)

	r.Group(func(r chi.Router) {
		r.Use(auth.Require(middleware.PermissionWrite, writeError))
		r.Post("/cdm", cdm.Ingest)
		r.Delete("/cdms/{id}", cdm.Withdraw)
		r.Post("/maneuvers", maneuver.Announce)
		r.Patch("/maneuvers/{id}", maneuver.Update)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Require(middleware.PermissionRead, writeError))
		r.Get("/cdms", cdm.List)
		r.Get("/cdms/{id}", cdm.Get)
		r.Get("/objects", object.List)
		r.Get("/objects/{id}", object.Get)
		r.Get("/peers", peer.List)
		r.Get("/metrics", metricsHandler.Get)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Require(middleware.PermissionAdmin, writeError))
		r.Post("/peers", peer.Add)
		r.Delete("/peers/{id}", peer.Remove)
	})

	return r
}

// requestLogger logs each request's method, path, status, and duration,
// matching dittofs's custom chi middleware in place of chi's stock logger.
func requestLogger(log logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Infof("%s %s -> %d (%s) request_id=%s", r.Method, r.URL.Path, ww.Status(),
				time.Since(start), chimw.GetReqID(r.Context()))
		})
	}
}
