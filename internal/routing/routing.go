// Package routing implements the dedup & routing engine (spec §4.5): the
// seven-step decision procedure every envelope passes through regardless
// of whether it originated locally or arrived from a peer, plus the
// re-announce sweep run when a session reaches Active. Grounded on the
// teacher's core.Gather/applyDeliver dispatch (one central decision point
// all inbound traffic funnels through before touching the state machine),
// generalized from GM-cast's quorum commit to flood-routing's
// dedup-then-forward.
package routing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/tamtunnel/spacecomms/internal/envelope"
	"github.com/tamtunnel/spacecomms/internal/logging"
	"github.com/tamtunnel/spacecomms/internal/metrics"
	"github.com/tamtunnel/spacecomms/internal/model"
	"github.com/tamtunnel/spacecomms/internal/seenset"
	"github.com/tamtunnel/spacecomms/internal/store"
)

// Peer is the subset of session.Session the routing engine needs, kept as
// a narrow interface so routing can be tested without a real transport.
type Peer interface {
	ID() string
	Phase() model.SessionPhase
	Policy() model.PeerPolicy
	Send(env model.Envelope)
}

// Registry enumerates known peers for the per-peer policy/forward step.
type Registry interface {
	Peers() []Peer
}

// Outcome reports what the engine did with one envelope, for callers
// (ingress, tests) that want to know without re-deriving it.
type Outcome struct {
	Forwarded   []string // peer IDs forwarded to
	StoreResult store.Result
	Duplicate   bool
	Looped      bool
	TTLExpired  bool
	Conflict    bool
}

// Engine is the node's single dedup & routing decision point.
type Engine struct {
	localNodeID string
	maxHopCount int
	limits      envelope.Limits

	store   *store.Store
	seen    *seenset.Set
	peers   Registry
	metrics *metrics.Metrics
	log     logging.Logger
}

// New constructs an Engine. peers may be installed after construction via
// a Registry whose Peers() reflects live session state (spec §4.5 step 6
// "peers in Active state").
func New(localNodeID string, maxHopCount int, s *store.Store, seen *seenset.Set, peers Registry, m *metrics.Metrics, log logging.Logger) *Engine {
	return &Engine{
		localNodeID: localNodeID,
		maxHopCount: maxHopCount,
		limits:      envelope.Limits{MaxHopCount: maxHopCount, MaxBytes: 1 << 20},
		store:       s,
		seen:        seen,
		peers:       peers,
		metrics:     m,
		log:         log,
	}
}

// Route runs the spec §4.5 decision procedure for one envelope.
// senderPeerID is "" for a locally-originated envelope (already stamped by
// the ingress mediator) and a peer id for a forwarded one.
func (e *Engine) Route(senderPeerID string, env model.Envelope) (Outcome, error) {
	var out Outcome

	// Step 1: structural check.
	if err := envelope.Validate(env, e.limits); err != nil {
		e.metrics.IncErrors()
		return out, errors.Wrap(err, "structural check failed")
	}

	// Step 2: deduplication.
	if !e.seen.Record(env.MessageID, env.SourceNodeID, time.Now()) {
		out.Duplicate = true
		e.metrics.IncDuplicatesDropped()
		return out, nil
	}

	// Step 3: loop prevention. Only a peer-sourced envelope can be a loop;
	// a locally-originated one (senderPeerID == "") legitimately carries
	// our own node id as SourceNodeID and must still commit and forward.
	if senderPeerID != "" && env.SourceNodeID == e.localNodeID {
		out.Looped = true
		return out, nil
	}

	// Step 4: TTL/hop.
	forwardEligible := true
	if env.HopCount >= env.TTL || env.HopCount >= e.maxHopCount {
		out.TTLExpired = true
		forwardEligible = false
	}

	// Step 5: commit.
	result, err := e.commit(env)
	if err != nil {
		e.metrics.IncErrors()
		return out, errors.Wrap(err, "commit failed")
	}
	out.StoreResult = result
	if result == store.ResultStale {
		forwardEligible = false
	}
	if result == store.ResultConflict {
		out.Conflict = true
		forwardEligible = false
	}

	if !forwardEligible {
		return out, nil
	}

	// Steps 6-7: per-peer policy and forward.
	out.Forwarded = e.forward(senderPeerID, env)
	return out, nil
}

func (e *Engine) commit(env model.Envelope) (store.Result, error) {
	switch env.MessageType {
	case model.MessageObjectStateAnnounce:
		var obj model.Object
		if err := json.Unmarshal(env.Payload, &obj); err != nil {
			return "", errors.Wrap(err, "decode object payload")
		}
		obj.OriginNodeID = env.SourceNodeID
		result := e.store.UpsertObject(obj)
		return result, nil

	case model.MessageObjectStateWithdraw:
		var w withdrawPayload
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return "", errors.Wrap(err, "decode object withdraw payload")
		}
		return e.store.WithdrawObject(w.ObjectID, w.EffectiveTime, w.Reason), nil

	case model.MessageCDMAnnounce:
		var cdm model.CDM
		if err := json.Unmarshal(env.Payload, &cdm); err != nil {
			return "", errors.Wrap(err, "decode cdm payload")
		}
		cdm.OriginNodeID = env.SourceNodeID
		result := e.store.UpsertCDM(cdm)
		if result == store.ResultCreated || result == store.ResultUpdated {
			e.metrics.IncCDMsAnnounced()
		}
		return result, nil

	case model.MessageCDMWithdraw:
		var w withdrawPayload
		if err := json.Unmarshal(env.Payload, &w); err != nil {
			return "", errors.Wrap(err, "decode cdm withdraw payload")
		}
		result := e.store.WithdrawCDM(w.CDMID, w.EffectiveTime, w.Reason)
		if result == store.ResultWithdrawn {
			e.metrics.IncCDMsWithdrawn()
		}
		return result, nil

	case model.MessageManeuverIntent, model.MessageManeuverStatus:
		var m model.Maneuver
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return "", errors.Wrap(err, "decode maneuver payload")
		}
		m.OriginNodeID = env.SourceNodeID
		return e.store.UpsertManeuver(m), nil

	default:
		return "", fmt.Errorf("message type %s has no commit handler", env.MessageType)
	}
}

// withdrawPayload is the shared WITHDRAW body for both objects and CDMs.
type withdrawPayload struct {
	ObjectID      string               `json:"object_id,omitempty"`
	CDMID         string               `json:"cdm_id,omitempty"`
	EffectiveTime time.Time            `json:"effective_time"`
	Reason        model.WithdrawReason `json:"reason"`
}

// forward applies per-peer policy (step 6) and emits to every peer that
// passes it (step 7), excluding the sender and the originator.
func (e *Engine) forward(senderPeerID string, env model.Envelope) []string {
	var forwardedTo []string
	fwd := env.Forward()

	for _, p := range e.peers.Peers() {
		if p.ID() == senderPeerID {
			continue
		}
		if p.ID() == env.SourceNodeID {
			continue
		}
		if p.Phase() != model.PhaseActive {
			continue
		}
		if !evaluatePolicy(p.Policy(), env) {
			continue
		}
		p.Send(fwd)
		e.metrics.IncMessagesSent()
		forwardedTo = append(forwardedTo, p.ID())
	}
	return forwardedTo
}

// evaluatePolicy applies one peer's filters to a forward candidate (spec
// §4.5 step 6). Unknown peers (zero-value policy) default to reject.
func evaluatePolicy(policy model.PeerPolicy, env model.Envelope) bool {
	if policy.Action == "" || policy.Action == model.PolicyReject {
		return false
	}

	f := policy.Filters
	if len(f.MessageType) > 0 && !containsType(f.MessageType, env.MessageType) {
		return false
	}
	if len(f.Originator) > 0 && !containsString(f.Originator, env.SourceNodeID) {
		return false
	}

	if len(f.ObjectOwner) > 0 || len(f.ObjectType) > 0 {
		owner, objType, ok := extractObjectAttrs(env)
		if !ok {
			return false
		}
		if len(f.ObjectOwner) > 0 && !containsString(f.ObjectOwner, owner) {
			return false
		}
		if len(f.ObjectType) > 0 && !containsObjectType(f.ObjectType, objType) {
			return false
		}
	}

	return true
}

// extractObjectAttrs best-effort reads owner/object_type out of a payload
// for policy filtering; messages without those concepts (HELLO, maneuver
// intents) never match an object_owner/object_type filter.
func extractObjectAttrs(env model.Envelope) (owner string, objType model.ObjectType, ok bool) {
	switch env.MessageType {
	case model.MessageObjectStateAnnounce:
		var obj model.Object
		if json.Unmarshal(env.Payload, &obj) != nil {
			return "", "", false
		}
		return obj.OwnerOperator, obj.ObjectType, true
	case model.MessageCDMAnnounce:
		var cdm model.CDM
		if json.Unmarshal(env.Payload, &cdm) != nil {
			return "", "", false
		}
		// ConjunctionObject carries no owner field; object_owner filters
		// never match a CDM, only object_type does.
		return "", cdm.Object1.ObjectType, true
	default:
		return "", "", false
	}
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsType(set []model.MessageType, v model.MessageType) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func containsObjectType(set []model.ObjectType, v model.ObjectType) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// ReannounceSweep synthesizes ANNOUNCE envelopes for every currently valid
// record and sends them to one newly Active peer (spec §4.5 "re-announce
// sweep"). Withdrawn-but-tracked records are included so a reconnected
// peer learns the withdrawal (spec §9 Open Question (a)).
func (e *Engine) ReannounceSweep(peer Peer) int {
	refs := e.store.SnapshotForSweep()
	count := 0
	for _, ref := range refs {
		env, ok := e.synthesizeAnnounce(ref)
		if !ok {
			continue
		}
		peer.Send(env)
		e.metrics.IncMessagesSent()
		count++
	}
	return count
}

func (e *Engine) synthesizeAnnounce(ref store.ValidRecordRef) (model.Envelope, bool) {
	now := time.Now().UTC()

	switch {
	case ref.CDM != nil:
		source := ref.CDM.OriginNodeID
		if source == "" {
			source = e.localNodeID
		}
		msgType := model.MessageCDMAnnounce
		payload := ref.CDM
		if ref.CDM.Withdrawn {
			msgType = model.MessageCDMWithdraw
			body, _ := json.Marshal(withdrawPayload{
				CDMID:         ref.CDM.CDMID,
				EffectiveTime: ref.CDM.WithdrawnAt,
				Reason:        ref.CDM.WithdrawReason,
			})
			return model.Envelope{
				ProtocolVersion: "1.1",
				MessageID:       uuid.NewString(),
				Timestamp:       now,
				SourceNodeID:    source,
				MessageType:     msgType,
				HopCount:        0,
				TTL:             e.maxHopCount,
				Payload:         body,
			}, true
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return model.Envelope{}, false
		}
		return model.Envelope{
			ProtocolVersion: "1.1",
			MessageID:       uuid.NewString(),
			Timestamp:       now,
			SourceNodeID:    source,
			MessageType:     msgType,
			HopCount:        0,
			TTL:             e.maxHopCount,
			Payload:         body,
		}, true

	case ref.Object != nil:
		source := ref.Object.OriginNodeID
		if source == "" {
			source = e.localNodeID
		}
		msgType := model.MessageObjectStateAnnounce
		if ref.Object.Withdrawn {
			msgType = model.MessageObjectStateWithdraw
			body, _ := json.Marshal(withdrawPayload{
				ObjectID:      ref.Object.ObjectID,
				EffectiveTime: ref.Object.WithdrawnAt,
				Reason:        ref.Object.WithdrawReason,
			})
			return model.Envelope{
				ProtocolVersion: "1.1",
				MessageID:       uuid.NewString(),
				Timestamp:       now,
				SourceNodeID:    source,
				MessageType:     msgType,
				HopCount:        0,
				TTL:             e.maxHopCount,
				Payload:         body,
			}, true
		}
		body, err := json.Marshal(ref.Object)
		if err != nil {
			return model.Envelope{}, false
		}
		return model.Envelope{
			ProtocolVersion: "1.1",
			MessageID:       uuid.NewString(),
			Timestamp:       now,
			SourceNodeID:    source,
			MessageType:     msgType,
			HopCount:        0,
			TTL:             e.maxHopCount,
			Payload:         body,
		}, true

	case ref.Maneuver != nil:
		source := ref.Maneuver.OriginNodeID
		if source == "" {
			source = e.localNodeID
		}
		body, err := json.Marshal(ref.Maneuver)
		if err != nil {
			return model.Envelope{}, false
		}
		msgType := model.MessageManeuverIntent
		if ref.Maneuver.Status != model.ManeuverPlanned {
			msgType = model.MessageManeuverStatus
		}
		return model.Envelope{
			ProtocolVersion: "1.1",
			MessageID:       uuid.NewString(),
			Timestamp:       now,
			SourceNodeID:    source,
			MessageType:     msgType,
			HopCount:        0,
			TTL:             e.maxHopCount,
			Payload:         body,
		}, true

	default:
		return model.Envelope{}, false
	}
}
