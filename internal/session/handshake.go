package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tamtunnel/spacecomms/internal/envelope"
	"github.com/tamtunnel/spacecomms/internal/model"
)

// helloPayload is the HELLO message body (spec §4.4 version negotiation).
type helloPayload struct {
	NodeID            string   `json:"node_id"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions"`
}

// heartbeatPayload is the HEARTBEAT message body.
type heartbeatPayload struct {
	Sequence uint64 `json:"sequence"`
}

func (s *Session) buildHello() model.Envelope {
	supported := make([]string, len(s.cfg.LocalSupported))
	for i, v := range s.cfg.LocalSupported {
		supported[i] = v.String()
	}
	body, _ := json.Marshal(helloPayload{
		NodeID:            s.cfg.LocalNodeID,
		ProtocolVersion:   s.cfg.LocalVersion.String(),
		SupportedVersions: supported,
	})
	return model.Envelope{
		ProtocolVersion: s.cfg.LocalVersion.String(),
		MessageID:       uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		SourceNodeID:    s.cfg.LocalNodeID,
		MessageType:     model.MessageHello,
		HopCount:        0,
		TTL:             1,
		Payload:         body,
	}
}

func (s *Session) buildHeartbeat(seq uint64) model.Envelope {
	body, _ := json.Marshal(heartbeatPayload{Sequence: seq})
	return model.Envelope{
		ProtocolVersion: s.cfg.LocalVersion.String(),
		MessageID:       uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		SourceNodeID:    s.cfg.LocalNodeID,
		MessageType:     model.MessageHeartbeat,
		HopCount:        0,
		TTL:             1,
		Payload:         body,
	}
}

// sendHello is invoked once at session start, from both dialed and
// accepted sides (spec §4.4: both ends exchange HELLO on connect).
func (s *Session) sendHello() {
	s.Send(s.buildHello())
}

// handleInbound dispatches one received envelope according to the
// session's current phase. A non-nil error means the protocol was
// violated badly enough to tear the session down.
func (s *Session) handleInbound(env model.Envelope) error {
	phase := s.Phase()

	switch env.MessageType {
	case model.MessageHello:
		return s.handleHello(env, phase)
	case model.MessageHeartbeat:
		// lastActivity already refreshed by readLoop; nothing else to do.
		return nil
	case model.MessageError:
		s.log.Warnf("peer reported error %s for %s", env.ErrorCode, env.RelatedMessageID)
		return nil
	default:
		if phase != model.PhaseActive {
			return fmt.Errorf("received %s before session reached Active (phase=%s)", env.MessageType, phase)
		}
		if s.handlers.OnInbound != nil {
			s.handlers.OnInbound(s.peerID, env)
		}
		return nil
	}
}

func (s *Session) handleHello(env model.Envelope, phase model.SessionPhase) error {
	if phase == model.PhaseActive {
		// Peer re-sent HELLO on an already-active session; harmless, ignore.
		return nil
	}

	var body helloPayload
	if err := json.Unmarshal(env.Payload, &body); err != nil {
		return fmt.Errorf("malformed HELLO payload: %w", err)
	}

	remoteVersion, ok := envelope.ParseVersion(body.ProtocolVersion)
	if !ok {
		return fmt.Errorf("malformed HELLO protocol_version %q", body.ProtocolVersion)
	}
	var remoteSupported []envelope.Version
	for _, raw := range body.SupportedVersions {
		if v, ok := envelope.ParseVersion(raw); ok {
			remoteSupported = append(remoteSupported, v)
		}
	}
	if len(remoteSupported) == 0 {
		remoteSupported = []envelope.Version{remoteVersion}
	}

	negotiated, ok := envelope.Negotiate(s.cfg.LocalVersion, s.cfg.LocalSupported, remoteVersion, remoteSupported)
	if !ok {
		s.Send(model.Envelope{
			ProtocolVersion:  s.cfg.LocalVersion.String(),
			MessageID:        uuid.NewString(),
			Timestamp:        time.Now().UTC(),
			SourceNodeID:     s.cfg.LocalNodeID,
			MessageType:      model.MessageError,
			RelatedMessageID: env.MessageID,
			ErrorCode:        model.ErrorUnsupportedVersion,
			TTL:              1,
		})
		return fmt.Errorf("version negotiation failed: local=%s remote=%s", s.cfg.LocalVersion, remoteVersion)
	}

	s.mu.Lock()
	s.negotiatedVersion = negotiated
	wasHelloSent := s.phase == model.PhaseHelloSent
	wasUnidentified := s.peerID == ""
	if wasUnidentified {
		s.peerID = body.NodeID
	}
	s.phase = model.PhaseActive
	s.mu.Unlock()

	// An accepted session doesn't know which configured peer dialed it
	// until this point; let the owner look up its policy and index it by
	// its real id (spec §4.4 "Incoming unsolicited HELLO on a listening
	// channel").
	if wasUnidentified && s.handlers.OnIdentified != nil {
		s.handlers.OnIdentified(s)
	}

	// The accepting side only saw the remote HELLO now; it sends its own
	// HELLO back right after entering Active and before OnActive runs, so
	// the HELLO is queued ahead of any sweep traffic. The dialing side
	// already sent its HELLO.
	if !wasHelloSent {
		s.sendHello()
	}

	s.ResetBackoff()
	if s.handlers.OnActive != nil {
		s.handlers.OnActive(s.peerID)
	}
	return nil
}
