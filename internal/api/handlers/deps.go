package handlers

import (
	"time"

	"github.com/tamtunnel/spacecomms/internal/ingress"
	"github.com/tamtunnel/spacecomms/internal/metrics"
	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/store"
)

// PeerManager is the subset of the node's live peer table the API surface
// needs: enumerate, add a statically-configured peer (which the node
// dials), and remove one (which tears its session down).
type PeerManager interface {
	List() []model.PeerRecord
	Add(rec model.PeerRecord) error
	Remove(peerID string) error
}

// Deps are the node components every handler needs. Constructed once by
// the node and threaded through to each handler type.
type Deps struct {
	NodeID          string
	ProtocolVersion string
	StartedAt       time.Time

	Store   *store.Store
	Ingress *ingress.Mediator
	Metrics *metrics.Metrics
	Peers   PeerManager
}
