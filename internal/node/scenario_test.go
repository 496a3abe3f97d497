package node

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tamtunnel/spacecomms/internal/config"
	"github.com/tamtunnel/spacecomms/internal/logging"
	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/store"
	"github.com/tamtunnel/spacecomms/internal/transport"
)

// withdrawPayload mirrors the wire shape of routing's private withdrawPayload,
// used here only to build a local-ingest WITHDRAW body.
type withdrawPayload struct {
	CDMID         string               `json:"cdm_id,omitempty"`
	ObjectID      string               `json:"object_id,omitempty"`
	EffectiveTime time.Time            `json:"effective_time"`
	Reason        model.WithdrawReason `json:"reason"`
}

func testNodeConfig(id string, peers ...config.PeerConfig) *config.Config {
	return &config.Config{
		Node:   config.NodeConfig{ID: id},
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Storage: config.StorageConfig{
			Type: "memory",
		},
		Protocol: config.ProtocolConfig{
			HeartbeatIntervalSeconds: 1,
			SessionTimeoutSeconds:    1,
			MaxHopCount:              10,
		},
		Peers: peers,
	}
}

func newHarnessNode(t *testing.T, id string, net *transport.InProcessNetwork, peers ...config.PeerConfig) *Node {
	t.Helper()
	n, err := New(testNodeConfig(id, peers...), logging.Discard(), Options{
		Dialer:   net.Dialer(),
		Listener: net.Listen(id),
	})
	require.NoError(t, err)
	return n
}

func waitSessionActive(t *testing.T, n *Node, peerID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		n.mu.Lock()
		s, ok := n.sessions[peerID]
		n.mu.Unlock()
		return ok && s.Phase() == model.PhaseActive
	}, 5*time.Second, 5*time.Millisecond, "%s never reached Active with %s", n.cfg.Node.ID, peerID)
}

func demoCDM(id, originator string) model.CDM {
	now := time.Now().UTC()
	return model.CDM{
		CDMID:                id,
		Originator:           originator,
		CreationDate:         now,
		TCA:                  now.Add(6 * time.Hour),
		MissDistanceM:        750,
		CollisionProbability: 0.0012,
		Object1:              model.ConjunctionObject{ObjectID: "sat-1001", ObjectType: model.ObjectTypePayload},
		Object2:              model.ConjunctionObject{ObjectID: "sat-2002", ObjectType: model.ObjectTypeDebris},
	}
}

// TestScenarioBasicPropagation is spec scenario S1: an A<->B topology,
// inject a CDM at A, expect B's store to hold it within one round-trip
// and both nodes' counters to move by exactly one.
func TestScenarioBasicPropagation(t *testing.T) {
	net := transport.NewInProcessNetwork()
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newHarnessNode(t, "node-a", net, config.PeerConfig{ID: "node-b", Address: "node-b"})
	b := newHarnessNode(t, "node-b", net, config.PeerConfig{ID: "node-a", Address: "node-a"})

	go a.Serve(ctx)
	go b.Serve(ctx)
	defer a.Shutdown(context.Background())
	defer b.Shutdown(context.Background())

	waitSessionActive(t, a, "node-b")
	waitSessionActive(t, b, "node-a")

	cdm := demoCDM("CDM-2024-DEMO-001", "node-a")
	out, err := a.ingress.IngestLocal(model.MessageCDMAnnounce, cdm)
	require.NoError(t, err)
	require.Equal(t, store.ResultCreated, out.StoreResult)

	require.Eventually(t, func() bool {
		_, ok := b.store.GetCDM("CDM-2024-DEMO-001")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	require.EqualValues(t, 1, b.metrics.Snapshot(0).MessagesReceived)
	require.EqualValues(t, 1, a.metrics.Snapshot(0).CDMsAnnounced)
}

// TestScenarioTriangleDedup is spec scenario S2: a fully-connected A/B/C
// triangle. An injection at A reaches C over two paths (direct, and via
// B); C must commit it exactly once and count the second copy as a
// dropped duplicate.
func TestScenarioTriangleDedup(t *testing.T) {
	net := transport.NewInProcessNetwork()
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newHarnessNode(t, "node-a", net,
		config.PeerConfig{ID: "node-b", Address: "node-b"},
		config.PeerConfig{ID: "node-c", Address: "node-c"})
	b := newHarnessNode(t, "node-b", net,
		config.PeerConfig{ID: "node-a", Address: "node-a"},
		config.PeerConfig{ID: "node-c", Address: "node-c"})
	c := newHarnessNode(t, "node-c", net,
		config.PeerConfig{ID: "node-a", Address: "node-a"},
		config.PeerConfig{ID: "node-b", Address: "node-b"})

	go a.Serve(ctx)
	go b.Serve(ctx)
	go c.Serve(ctx)
	defer a.Shutdown(context.Background())
	defer b.Shutdown(context.Background())
	defer c.Shutdown(context.Background())

	for _, pair := range [][2]*Node{{a, b}, {a, c}, {b, c}} {
		waitSessionActive(t, pair[0], pair[1].cfg.Node.ID)
		waitSessionActive(t, pair[1], pair[0].cfg.Node.ID)
	}

	out, err := a.ingress.IngestLocal(model.MessageCDMAnnounce, demoCDM("CDM-2024-DEMO-002", "node-a"))
	require.NoError(t, err)
	require.Equal(t, store.ResultCreated, out.StoreResult)

	require.Eventually(t, func() bool {
		_, ok := c.store.GetCDM("CDM-2024-DEMO-002")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return c.metrics.Snapshot(0).DuplicatesDropped >= 1
	}, 2*time.Second, 5*time.Millisecond, "C never saw the duplicate copy dropped")
}

// TestScenarioWithdrawOverridesAnnounce is spec scenario S3: after S1,
// withdrawing the CDM at A must mark it withdrawn at B within one
// round-trip.
func TestScenarioWithdrawOverridesAnnounce(t *testing.T) {
	net := transport.NewInProcessNetwork()
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newHarnessNode(t, "node-a", net, config.PeerConfig{ID: "node-b", Address: "node-b"})
	b := newHarnessNode(t, "node-b", net, config.PeerConfig{ID: "node-a", Address: "node-a"})

	go a.Serve(ctx)
	go b.Serve(ctx)
	defer a.Shutdown(context.Background())
	defer b.Shutdown(context.Background())

	waitSessionActive(t, a, "node-b")
	waitSessionActive(t, b, "node-a")

	_, err := a.ingress.IngestLocal(model.MessageCDMAnnounce, demoCDM("CDM-2024-DEMO-003", "node-a"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := b.store.GetCDM("CDM-2024-DEMO-003")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	_, err = a.ingress.IngestLocal(model.MessageCDMWithdraw, withdrawPayload{
		CDMID:         "CDM-2024-DEMO-003",
		EffectiveTime: time.Now().UTC(),
		Reason:        model.ReasonSuperseded,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		cdm, ok := b.store.GetCDM("CDM-2024-DEMO-003")
		return ok && cdm.Withdrawn
	}, 2*time.Second, 5*time.Millisecond)
}

// TestScenarioStaleObjectRejected is spec scenario S4: a second object
// upsert with an older epoch is rejected and never forwarded.
func TestScenarioStaleObjectRejected(t *testing.T) {
	net := transport.NewInProcessNetwork()
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newHarnessNode(t, "node-a", net, config.PeerConfig{ID: "node-b", Address: "node-b"})
	b := newHarnessNode(t, "node-b", net, config.PeerConfig{ID: "node-a", Address: "node-a"})

	go a.Serve(ctx)
	go b.Serve(ctx)
	defer a.Shutdown(context.Background())
	defer b.Shutdown(context.Background())

	waitSessionActive(t, a, "node-b")
	waitSessionActive(t, b, "node-a")

	fresh := model.Object{ObjectID: "NORAD-12345", State: model.StateVector{Epoch: time.Unix(10, 0).UTC()}}
	out, err := a.ingress.IngestLocal(model.MessageObjectStateAnnounce, fresh)
	require.NoError(t, err)
	require.Equal(t, store.ResultCreated, out.StoreResult)

	require.Eventually(t, func() bool {
		_, ok := b.store.GetObject("NORAD-12345")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	stale := model.Object{ObjectID: "NORAD-12345", State: model.StateVector{Epoch: time.Unix(5, 0).UTC()}}
	out, err = a.ingress.IngestLocal(model.MessageObjectStateAnnounce, stale)
	require.NoError(t, err)
	require.Equal(t, store.ResultStale, out.StoreResult)
	require.Empty(t, out.Forwarded)

	// Give any (incorrect) forward a chance to land, then confirm B's
	// epoch never moved backward and it only ever received one envelope
	// for this object.
	time.Sleep(50 * time.Millisecond)
	stored, ok := b.store.GetObject("NORAD-12345")
	require.True(t, ok)
	require.True(t, stored.State.Epoch.Equal(time.Unix(10, 0).UTC()))
	require.EqualValues(t, 1, b.metrics.Snapshot(0).MessagesReceived)
}

// TestScenarioPeerRestartRecovery is spec scenario S6: A<->B established,
// B "crashes" (its session is torn down without the withdraw/goodbye
// handshake spec has none of), which closes the shared in-process channel
// so A sees the connection drop and redials with backoff, and the
// reconnect's re-announce sweep redelivers state B never saw.
func TestScenarioPeerRestartRecovery(t *testing.T) {
	net := transport.NewInProcessNetwork()
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newHarnessNode(t, "node-a", net, config.PeerConfig{ID: "node-b", Address: "node-b"})
	b := newHarnessNode(t, "node-b", net, config.PeerConfig{ID: "node-a", Address: "node-a"})

	go a.Serve(ctx)
	go b.Serve(ctx)

	waitSessionActive(t, a, "node-b")
	waitSessionActive(t, b, "node-a")

	_, err := a.ingress.IngestLocal(model.MessageCDMAnnounce, demoCDM("CDM-2024-DEMO-004", "node-a"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := b.store.GetCDM("CDM-2024-DEMO-004")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// Simulate B crashing: tear its session down and shut the node's
	// network endpoint, losing its accumulated store, without A being
	// told anything.
	require.NoError(t, b.Shutdown(context.Background()))

	require.Eventually(t, func() bool {
		a.mu.Lock()
		_, ok := a.sessions["node-b"]
		a.mu.Unlock()
		return !ok
	}, 3*time.Second, 10*time.Millisecond, "A never noticed B's session close")

	b2 := newHarnessNode(t, "node-b", net, config.PeerConfig{ID: "node-a", Address: "node-a"})
	go b2.Serve(ctx)
	defer a.Shutdown(context.Background())
	defer b2.Shutdown(context.Background())

	waitSessionActive(t, a, "node-b")
	waitSessionActive(t, b2, "node-a")

	require.Eventually(t, func() bool {
		_, ok := b2.store.GetCDM("CDM-2024-DEMO-004")
		return ok
	}, 3*time.Second, 10*time.Millisecond, "reconnect never re-delivered prior state to restarted B")
}
