// Package session implements the per-peer session state machine (spec
// §4.4): dial/listen lifecycle, version negotiation, heartbeat, and
// reconnect backoff. Grounded on the teacher's core.Peer: one goroutine
// owns a transport.Channel exclusively (poll loop reading from the
// channel and an internal command channel), spawned via NewPeer and
// torn down via Stop/context cancellation — generalized here from GM-cast
// message processing to envelope forwarding and heartbeat bookkeeping.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/tamtunnel/spacecomms/internal/envelope"
	"github.com/tamtunnel/spacecomms/internal/logging"
	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/transport"
)

// Config bounds a session's protocol behavior (spec §4.4, §6 protocol.*).
type Config struct {
	LocalNodeID          string
	LocalVersion         envelope.Version
	LocalSupported       []envelope.Version
	HeartbeatInterval    time.Duration
	SessionTimeout       time.Duration
	OutboundQueueSize    int
	DrainDeadline        time.Duration
}

// DefaultConfig matches spec §6 protocol.* defaults.
func DefaultConfig(nodeID string) Config {
	return Config{
		LocalNodeID:       nodeID,
		LocalVersion:      envelope.Version{Major: 1, Minor: 1},
		LocalSupported:    []envelope.Version{{Major: 1, Minor: 0}, {Major: 1, Minor: 1}},
		HeartbeatInterval: 30 * time.Second,
		SessionTimeout:    120 * time.Second,
		OutboundQueueSize: 1024,
		DrainDeadline:     5 * time.Second,
	}
}

// Handlers are the callbacks a Session invokes into the routing engine.
// Kept as plain function fields (rather than an interface) to match the
// teacher's habit of small functional hand-offs (core.Peer's applyDeliver
// closure passed into NewQueue).
type Handlers struct {
	// OnInbound is called for each envelope received on this session once
	// it is Active, except HELLO, HEARTBEAT and ERROR, which the session
	// handles itself.
	OnInbound func(peerID string, env model.Envelope)
	// OnActive is called once the session reaches Active, to trigger the
	// re-announce sweep (spec §4.5).
	OnActive func(peerID string)
	// OnClosed is called when the session tears down, for reconnect scheduling.
	OnClosed func(peerID string)
	// OnIdentified is called exactly once for an accepted session, the
	// moment its peer's HELLO reveals node_id, so the owner can install a
	// policy and index it under its real id.
	OnIdentified func(s *Session)
}

// Session owns one peer's Channel and state machine.
type Session struct {
	cfg      Config
	log      logging.Logger
	peerID   string
	handlers Handlers
	policy   model.PeerPolicy

	mu                sync.Mutex
	phase             model.SessionPhase
	negotiatedVersion envelope.Version
	lastActivity      time.Time
	heartbeatSeq      uint64

	channel  transport.Channel
	outbound chan model.Envelope

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	backoff *backoff.Backoff
}

// New constructs a Session in Idle phase. Call RunDialed or RunAccepted to
// begin running it over an already-established Channel.
func New(peerID string, cfg Config, log logging.Logger, handlers Handlers) *Session {
	return &Session{
		cfg:      cfg,
		log:      log.WithField("peer_id", peerID),
		peerID:   peerID,
		handlers: handlers,
		phase:    model.PhaseIdle,
		backoff: &backoff.Backoff{
			Min:    1 * time.Second,
			Max:    60 * time.Second,
			Factor: 2,
			Jitter: false,
		},
	}
}

// ID returns the peer id this session serves, satisfying routing.Peer. For
// an accepted session this is empty until the peer's HELLO identifies it.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerID
}

// Phase returns the current session phase.
func (s *Session) Phase() model.SessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Policy returns the forwarding policy configured for this peer.
func (s *Session) Policy() model.PeerPolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// SetPolicy installs the forwarding policy for this peer (from config or
// a live peer-table update via the API).
func (s *Session) SetPolicy(p model.PeerPolicy) {
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}

func (s *Session) setPhase(p model.SessionPhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// NegotiatedVersion returns the version agreed during hello exchange.
func (s *Session) NegotiatedVersion() envelope.Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.negotiatedVersion
}

// NextBackoff returns the next reconnect delay, per spec §4.4's
// 1s,2s,4s,8s,...,60s schedule.
func (s *Session) NextBackoff() time.Duration {
	return s.backoff.Duration()
}

// ResetBackoff is called on a successful Active transition (spec §4.4).
func (s *Session) ResetBackoff() {
	s.backoff.Reset()
}

// RunDialed drives a session for a locally-initiated (dialed) connection:
// Idle -> Dialing -> HelloSent -> Active.
func (s *Session) RunDialed(parent context.Context, ch transport.Channel) error {
	s.setPhase(model.PhaseDialing)
	return s.run(parent, ch, true)
}

// RunAccepted drives a session for a remotely-initiated connection:
// Idle -> HelloReceived -> Active (after local HELLO echoed back).
func (s *Session) RunAccepted(parent context.Context, ch transport.Channel) error {
	return s.run(parent, ch, false)
}

func (s *Session) run(parent context.Context, ch transport.Channel, dialed bool) error {
	s.ctx, s.cancel = context.WithCancel(parent)
	s.channel = ch
	s.outbound = make(chan model.Envelope, s.cfg.OutboundQueueSize)
	s.done = make(chan struct{})
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if dialed {
		s.setPhase(model.PhaseHelloSent)
	} else {
		s.setPhase(model.PhaseHelloReceived)
	}

	go s.writeLoop()
	go s.readLoop()
	go s.heartbeatLoop()

	if dialed {
		s.sendHello()
	}

	<-s.done
	return nil
}

// Send enqueues an envelope for outbound delivery, applying the
// backpressure policy of spec §5: if the queue is full, drop the oldest
// non-essential (non-HELLO/ERROR) envelope first.
func (s *Session) Send(env model.Envelope) {
	select {
	case s.outbound <- env:
		return
	default:
	}

	if env.MessageType == model.MessageHello || env.MessageType == model.MessageError {
		// Make room by discarding one queued non-essential entry; the
		// essential message itself is dropped only if none was queued.
		s.dropOldestNonEssential()
		select {
		case s.outbound <- env:
		default:
			s.log.Warnf("outbound queue saturated even after eviction, dropping essential message %s", env.MessageID)
		}
		return
	}

	s.dropOldestNonEssential()
	select {
	case s.outbound <- env:
	default:
		s.log.Warnf("outbound queue overflow, dropped %s", env.MessageID)
	}
}

func (s *Session) dropOldestNonEssential() {
	for i := len(s.outbound); i > 0; i-- {
		select {
		case dropped := <-s.outbound:
			if dropped.MessageType != model.MessageHello && dropped.MessageType != model.MessageError {
				return
			}
			// Put it back; we must not drop essential traffic. This is a
			// best-effort reinsertion; if the queue is saturated with
			// essential traffic alone, overflow is logged by the caller.
			select {
			case s.outbound <- dropped:
			default:
			}
		default:
			return
		}
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case env, ok := <-s.outbound:
			if !ok {
				return
			}
			if err := s.channel.Send(env); err != nil {
				s.log.Errorf("write failed: %v", err)
				s.closeSession()
				return
			}
		case <-s.ctx.Done():
			s.drainOutbound()
			return
		}
	}
}

func (s *Session) drainOutbound() {
	deadline := time.NewTimer(s.cfg.DrainDeadline)
	defer deadline.Stop()
	for {
		select {
		case env, ok := <-s.outbound:
			if !ok {
				return
			}
			_ = s.channel.Send(env)
		case <-deadline.C:
			return
		default:
			return
		}
	}
}

func (s *Session) readLoop() {
	defer s.closeSession()
	for {
		env, err := s.channel.Recv()
		if err != nil {
			s.log.Debugf("read loop ending: %v", err)
			return
		}

		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()

		if err := s.handleInbound(env); err != nil {
			s.log.Warnf("fatal protocol error: %v", err)
			return
		}

		select {
		case <-s.ctx.Done():
			return
		default:
		}
	}
}

func (s *Session) heartbeatLoop() {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	timeoutCheck := time.NewTicker(s.cfg.HeartbeatInterval / 2)
	defer timeoutCheck.Stop()

	for {
		select {
		case <-ticker.C:
			if s.Phase() != model.PhaseActive {
				continue
			}
			s.mu.Lock()
			s.heartbeatSeq++
			seq := s.heartbeatSeq
			s.mu.Unlock()
			s.Send(s.buildHeartbeat(seq))
		case <-timeoutCheck.C:
			s.mu.Lock()
			idle := time.Since(s.lastActivity)
			s.mu.Unlock()
			if s.Phase() == model.PhaseActive && idle > s.cfg.SessionTimeout {
				s.log.Warnf("heartbeat timeout after %s", idle)
				s.setPhase(model.PhaseClosing)
				s.closeSession()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) closeSession() {
	s.mu.Lock()
	if s.phase == model.PhaseClosed {
		s.mu.Unlock()
		return
	}
	s.phase = model.PhaseClosed
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	_ = s.channel.Close()

	select {
	case <-s.done:
	default:
		close(s.done)
	}

	if s.handlers.OnClosed != nil {
		s.handlers.OnClosed(s.ID())
	}
}

// Stop gracefully tears the session down (spec §4.4 "Active -> Closing"
// on explicit remove; §5 Cancellation).
func (s *Session) Stop() {
	s.setPhase(model.PhaseClosing)
	s.closeSession()
}
