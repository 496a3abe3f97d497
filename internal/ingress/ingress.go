// Package ingress implements the ingress mediator (spec §4.6): the single
// entry point that turns a bare local payload or a wire envelope into a
// call into the routing engine, stamping the fields a local caller never
// supplies (message_id, source_node_id, hop_count, ttl).
package ingress

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/routing"
)

// Mediator bridges local ingest and peer ingest into one routing.Engine call.
type Mediator struct {
	localNodeID string
	maxHopCount int
	protocol    string
	engine      *routing.Engine
}

func New(localNodeID, protocolVersion string, maxHopCount int, engine *routing.Engine) *Mediator {
	return &Mediator{
		localNodeID: localNodeID,
		maxHopCount: maxHopCount,
		protocol:    protocolVersion,
		engine:      engine,
	}
}

// IngestLocal accepts a bare payload from the local API surface (spec §4.6
// "local ingest"), stamps it as a fresh origination, and enters routing.
func (m *Mediator) IngestLocal(messageType model.MessageType, payload interface{}) (routing.Outcome, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return routing.Outcome{}, err
	}
	env := model.Envelope{
		ProtocolVersion: m.protocol,
		MessageID:       uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		SourceNodeID:    m.localNodeID,
		MessageType:     messageType,
		HopCount:        0,
		TTL:             m.maxHopCount,
		Payload:         body,
	}
	return m.engine.Route("", env)
}

// IngestFromPeer accepts a fully-formed envelope read off a peer session
// and enters routing unchanged (spec §4.6 "peer ingest").
func (m *Mediator) IngestFromPeer(peerID string, env model.Envelope) (routing.Outcome, error) {
	return m.engine.Route(peerID, env)
}
