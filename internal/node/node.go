// Package node wires every component into the single process-wide object
// that owns a SpaceComms node's lifetime: store, dedup/routing engine,
// ingress mediator, session manager, local API server, and the peer
// transport. Grounded on the teacher's core wiring in its constructor
// (one struct holding every collaborator, built once in New and driven by
// Start/Stop), generalized from GM-cast's quorum group to a flat set of
// bidirectional peer sessions.
package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"github.com/tamtunnel/spacecomms/internal/api"
	"github.com/tamtunnel/spacecomms/internal/api/handlers"
	"github.com/tamtunnel/spacecomms/internal/api/middleware"
	"github.com/tamtunnel/spacecomms/internal/config"
	"github.com/tamtunnel/spacecomms/internal/ingress"
	"github.com/tamtunnel/spacecomms/internal/logging"
	"github.com/tamtunnel/spacecomms/internal/metrics"
	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/routing"
	"github.com/tamtunnel/spacecomms/internal/seenset"
	"github.com/tamtunnel/spacecomms/internal/session"
	"github.com/tamtunnel/spacecomms/internal/store"
	"github.com/tamtunnel/spacecomms/internal/transport"
)

// Node owns every long-lived collaborator for one SpaceComms node.
type Node struct {
	cfg *config.Config
	log logging.Logger

	store   *store.Store
	journal *store.FileJournal
	seen    *seenset.Set
	metrics *metrics.Metrics
	engine  *routing.Engine
	ingress *ingress.Mediator
	auth    *middleware.Authenticator
	router  http.Handler

	dialer   transport.Dialer
	listener transport.Listener
	httpSrv  *http.Server

	sessionCfg session.Config
	startedAt  time.Time

	mu          sync.Mutex
	sessions    map[string]*session.Session    // keyed by configured peer id, or a temporary slot id for an unidentified accepted session
	peerConfigs map[string]config.PeerConfig   // statically (or API-) configured peers
	dialBackoff map[string]*backoff.Backoff
	closing     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options lets callers substitute the production transports with fakes
// (the in-process network used by session/routing/scenario tests).
type Options struct {
	Dialer   transport.Dialer
	Listener transport.Listener
}

// New builds a Node from cfg. It recovers file-backed storage if
// configured (spec §6 "storage.type=file") but does not yet accept
// connections or dial peers; call Serve for that.
func New(cfg *config.Config, log logging.Logger, opts Options) (*Node, error) {
	retention := store.Retention{
		CDMRetention:    time.Duration(cfg.Storage.Cleanup.CDMRetentionHours) * time.Hour,
		ObjectRetention: time.Duration(cfg.Storage.Cleanup.ObjectRetentionHours) * time.Hour,
		GraceWindow:     time.Hour,
	}

	var (
		st      *store.Store
		journal *store.FileJournal
	)
	if cfg.Storage.Type == "file" {
		recovered, err := store.Recover(cfg.Storage.FilePath, retention)
		if err != nil {
			return nil, fmt.Errorf("recover store: %w", err)
		}
		j, err := store.NewFileJournal(cfg.Storage.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		recovered.AttachJournal(j)
		st, journal = recovered, j
	} else {
		st = store.New(retention, nil)
	}

	seenTTL := cfg.Protocol.SessionTimeout() * 4
	if seenTTL < 10*time.Minute {
		seenTTL = 10 * time.Minute
	}
	seen := seenset.New(seenTTL, 100000)
	m := metrics.New()
	sessionCfg := session.DefaultConfig(cfg.Node.ID)
	sessionCfg.HeartbeatInterval = cfg.Protocol.HeartbeatInterval()
	sessionCfg.SessionTimeout = cfg.Protocol.SessionTimeout()

	n := &Node{
		cfg:         cfg,
		log:         log,
		store:       st,
		journal:     journal,
		seen:        seen,
		metrics:     m,
		sessionCfg:  sessionCfg,
		startedAt:   time.Now(),
		sessions:    make(map[string]*session.Session),
		peerConfigs: make(map[string]config.PeerConfig),
		dialBackoff: make(map[string]*backoff.Backoff),
	}

	n.engine = routing.New(cfg.Node.ID, cfg.Protocol.MaxHopCount, st, seen, n, m, log)
	n.ingress = ingress.New(cfg.Node.ID, sessionCfg.LocalVersion.String(), cfg.Protocol.MaxHopCount, n.engine)
	n.auth = middleware.NewAuthenticator(cfg.API.Auth, log)
	n.router = api.NewRouter(handlers.Deps{
		NodeID:          cfg.Node.ID,
		ProtocolVersion: sessionCfg.LocalVersion.String(),
		StartedAt:       n.startedAt,
		Store:           st,
		Ingress:         n.ingress,
		Metrics:         m,
		Peers:           n,
	}, n.auth, log)

	for _, pc := range cfg.Peers {
		n.peerConfigs[pc.ID] = pc
	}

	n.dialer = opts.Dialer
	if n.dialer == nil {
		n.dialer = transport.NewHTTP2Dialer(cfg.Server.TLS.Enabled)
	}
	n.listener = opts.Listener

	return n, nil
}

// Peers implements routing.Registry: every session currently tracked,
// identified or not (forward() filters on Phase()==Active anyway).
func (n *Node) Peers() []routing.Peer {
	n.mu.Lock()
	defer n.mu.Unlock()
	peers := make([]routing.Peer, 0, len(n.sessions))
	for _, s := range n.sessions {
		peers = append(peers, s)
	}
	return peers
}

// List implements handlers.PeerManager (spec §6 "GET /peers").
func (n *Node) List() []model.PeerRecord {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]model.PeerRecord, 0, len(n.peerConfigs))
	for id, pc := range n.peerConfigs {
		rec := model.PeerRecord{
			PeerID:    id,
			Address:   pc.Address,
			AuthToken: pc.AuthToken,
			Policy:    pc.Policies,
			Phase:     model.PhaseIdle,
		}
		if s, ok := n.sessions[id]; ok {
			rec.Phase = s.Phase()
			rec.NegotiatedVersion = s.NegotiatedVersion().String()
		}
		out = append(out, rec)
	}
	return out
}

// Add implements handlers.PeerManager (spec §6 "POST /peers"): registers
// a new peer and immediately starts dialing it.
func (n *Node) Add(rec model.PeerRecord) error {
	pc := config.PeerConfig{
		ID:        rec.PeerID,
		Address:   rec.Address,
		AuthToken: rec.AuthToken,
		Policies:  rec.Policy,
	}
	if pc.ID == "" || pc.Address == "" {
		return fmt.Errorf("peer id and address are required")
	}

	n.mu.Lock()
	if _, exists := n.peerConfigs[pc.ID]; exists {
		n.mu.Unlock()
		return fmt.Errorf("peer %s already configured", pc.ID)
	}
	n.peerConfigs[pc.ID] = pc
	closing := n.closing
	n.mu.Unlock()

	if !closing {
		n.dialPeer(pc)
	}
	return nil
}

// Remove implements handlers.PeerManager (spec §6 "DELETE /peers/{id}"):
// drops the peer from configuration and tears its session down.
func (n *Node) Remove(peerID string) error {
	n.mu.Lock()
	_, existed := n.peerConfigs[peerID]
	delete(n.peerConfigs, peerID)
	s, hasSession := n.sessions[peerID]
	delete(n.dialBackoff, peerID)
	n.mu.Unlock()

	if !existed {
		return fmt.Errorf("peer %s not configured", peerID)
	}
	if hasSession {
		s.Stop()
	}
	return nil
}

func (n *Node) peerConfig(peerID string) (config.PeerConfig, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pc, ok := n.peerConfigs[peerID]
	return pc, ok
}

func (n *Node) peerBackoffLocked(peerID string) *backoff.Backoff {
	b, ok := n.dialBackoff[peerID]
	if !ok {
		b = &backoff.Backoff{Min: 1 * time.Second, Max: 60 * time.Second, Factor: 2}
		n.dialBackoff[peerID] = b
	}
	return b
}

func (n *Node) countActiveLocked() int {
	active := 0
	for _, s := range n.sessions {
		if s.Phase() == model.PhaseActive {
			active++
		}
	}
	return active
}

// newTrackedSession builds a Session whose handlers keep it registered in
// n.sessions under slotID until (and if) it is re-keyed to its real peer
// id by handleIdentified.
func (n *Node) newTrackedSession(slotID, initialPeerID string) *session.Session {
	var s *session.Session
	h := session.Handlers{
		OnInbound: n.handleInbound,
		OnActive:  n.handleActive,
		OnIdentified: func(sess *session.Session) {
			n.handleIdentified(slotID, sess)
		},
		OnClosed: func(peerID string) {
			n.handleClosed(slotID, s)
		},
	}
	s = session.New(initialPeerID, n.sessionCfg, n.log, h)
	return s
}

func (n *Node) handleInbound(peerID string, env model.Envelope) {
	n.metrics.IncMessagesReceived()
	if _, err := n.ingress.IngestFromPeer(peerID, env); err != nil {
		n.log.Warnf("routing %s from %s failed: %v", env.MessageType, peerID, err)
	}
}

// handleIdentified installs the configured policy for a newly-identified
// accepted session and re-indexes it from its temporary slot to its real
// peer id (spec §4.4 "Incoming unsolicited HELLO on a listening channel").
func (n *Node) handleIdentified(slotID string, s *session.Session) {
	peerID := s.ID()

	n.mu.Lock()
	if existing, ok := n.sessions[slotID]; ok && existing == s {
		delete(n.sessions, slotID)
	}
	if existing, ok := n.sessions[peerID]; ok && existing != s {
		// A second connection from the same peer arrived; the older one
		// loses, matching "at most one session per peer" (spec §4.4).
		go existing.Stop()
	}
	n.sessions[peerID] = s
	pc, known := n.peerConfigs[peerID]
	n.mu.Unlock()

	if known {
		s.SetPolicy(pc.Policies)
	}
	n.log.Infof("accepted session identified as peer %s", peerID)
}

func (n *Node) handleActive(peerID string) {
	n.mu.Lock()
	s, ok := n.sessions[peerID]
	n.peerBackoffLocked(peerID).Reset()
	active := n.countActiveLocked()
	n.mu.Unlock()

	n.metrics.SetActivePeers(active)
	if !ok {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		count := n.engine.ReannounceSweep(s)
		n.log.Debugf("re-announce sweep to %s: %d records", peerID, count)
	}()
}

// handleClosed unregisters a closed session (whichever key it is
// currently filed under) and, for a statically configured peer still in
// the peer table, schedules a reconnect with backoff (spec §4.4).
func (n *Node) handleClosed(slotID string, s *session.Session) {
	peerID := s.ID()

	n.mu.Lock()
	for _, k := range []string{slotID, peerID} {
		if k == "" {
			continue
		}
		if existing, ok := n.sessions[k]; ok && existing == s {
			delete(n.sessions, k)
		}
	}
	active := n.countActiveLocked()
	closing := n.closing
	pc, known := n.peerConfigs[peerID]
	n.mu.Unlock()

	n.metrics.SetActivePeers(active)
	if closing || !known {
		return
	}
	n.scheduleRedial(pc)
}

func (n *Node) scheduleRedial(pc config.PeerConfig) {
	n.mu.Lock()
	delay := n.peerBackoffLocked(pc.ID).Duration()
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-n.ctx.Done():
			return
		}
		n.dialPeer(pc)
	}()
}

func (n *Node) dialPeer(pc config.PeerConfig) {
	n.mu.Lock()
	closing := n.closing
	_, alreadyConfigured := n.peerConfigs[pc.ID]
	n.mu.Unlock()
	if closing || !alreadyConfigured {
		return
	}

	ch, err := n.dialer.Dial(n.ctx, pc.Address, pc.AuthToken)
	if err != nil {
		n.log.Warnf("dial peer %s (%s) failed: %v", pc.ID, pc.Address, err)
		n.scheduleRedial(pc)
		return
	}

	s := n.newTrackedSession(pc.ID, pc.ID)
	s.SetPolicy(pc.Policies)
	n.mu.Lock()
	n.sessions[pc.ID] = s
	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		_ = s.RunDialed(n.ctx, ch)
	}()
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		ch, err := n.listener.Accept(n.ctx)
		if err != nil {
			if n.ctx.Err() != nil {
				return
			}
			n.log.Warnf("accept failed: %v", err)
			continue
		}

		slotID := uuid.NewString()
		s := n.newTrackedSession(slotID, "")
		n.mu.Lock()
		n.sessions[slotID] = s
		n.mu.Unlock()

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			_ = s.RunAccepted(n.ctx, ch)
		}()
	}
}

func (n *Node) gcLoop() {
	defer n.wg.Done()
	if !n.cfg.Storage.Cleanup.Enabled {
		return
	}
	interval := n.cfg.Protocol.SessionTimeout()
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removedCDMs, removedObjects := n.store.GC(time.Now().UTC())
			if removedCDMs > 0 || removedObjects > 0 {
				n.log.Debugf("gc swept %d cdms, %d objects", removedCDMs, removedObjects)
			}
			if n.journal != nil {
				if err := store.Checkpoint(n.cfg.Storage.FilePath, n.store); err != nil {
					n.log.Warnf("checkpoint failed: %v", err)
				}
			}
		case <-n.ctx.Done():
			return
		}
	}
}

// Serve starts accepting peer connections, dials every statically
// configured peer, and serves the local API surface until ctx is
// cancelled or Shutdown is called.
func (n *Node) Serve(ctx context.Context) error {
	n.ctx, n.cancel = context.WithCancel(ctx)

	if n.listener == nil {
		httpListener := transport.NewHTTPServerListener()
		n.listener = httpListener

		mux := http.NewServeMux()
		mux.Handle(transport.MessagesPath, httpListener.Handler())
		mux.Handle("/", n.router)

		addr := net.JoinHostPort(n.cfg.Server.Host, fmt.Sprintf("%d", n.cfg.Server.Port))
		n.httpSrv = &http.Server{Addr: addr, Handler: mux}

		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			var err error
			if n.cfg.Server.TLS.Enabled {
				err = n.httpSrv.ListenAndServeTLS(n.cfg.Server.TLS.CertPath, n.cfg.Server.TLS.KeyPath)
			} else {
				err = n.httpSrv.ListenAndServe()
			}
			if err != nil && err != http.ErrServerClosed {
				n.log.Errorf("http server stopped: %v", err)
			}
		}()
	}

	n.wg.Add(1)
	go n.acceptLoop()

	n.wg.Add(1)
	go n.gcLoop()

	n.mu.Lock()
	peerConfigs := make([]config.PeerConfig, 0, len(n.peerConfigs))
	for _, pc := range n.peerConfigs {
		peerConfigs = append(peerConfigs, pc)
	}
	n.mu.Unlock()
	for _, pc := range peerConfigs {
		go n.dialPeer(pc)
	}

	<-n.ctx.Done()
	return nil
}

// Shutdown stops accepting new work and tears every session and the HTTP
// server down, waiting for in-flight goroutines to finish.
func (n *Node) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	n.closing = true
	sessions := make([]*session.Session, 0, len(n.sessions))
	for _, s := range n.sessions {
		sessions = append(sessions, s)
	}
	n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}
	if n.listener != nil {
		_ = n.listener.Close()
	}
	if n.httpSrv != nil {
		_ = n.httpSrv.Shutdown(ctx)
	}
	for _, s := range sessions {
		s.Stop()
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if n.journal != nil {
		if err := store.Checkpoint(n.cfg.Storage.FilePath, n.store); err != nil {
			n.log.Warnf("final checkpoint failed: %v", err)
		}
		return n.journal.Close()
	}
	return nil
}

// Store exposes the node's record store.
func (n *Node) Store() *store.Store { return n.store }

// Metrics exposes the node's counters.
func (n *Node) Metrics() *metrics.Metrics { return n.metrics }
