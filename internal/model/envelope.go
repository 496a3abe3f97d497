// Package model holds the wire and domain types shared across the node:
// the versioned message envelope, CDM/object/maneuver records, and peer
// bookkeeping. Types here carry json tags matching the wire field names
// verbatim so envelope round-tripping (SPEC_FULL.md §8 property 1) is exact.
package model

import (
	"encoding/json"
	"time"
)

// MessageType is the closed set of envelope payload kinds.
type MessageType string

const (
	MessageHello                MessageType = "HELLO"
	MessageObjectStateAnnounce   MessageType = "OBJECT_STATE_ANNOUNCE"
	MessageObjectStateWithdraw   MessageType = "OBJECT_STATE_WITHDRAW"
	MessageCDMAnnounce           MessageType = "CDM_ANNOUNCE"
	MessageCDMWithdraw           MessageType = "CDM_WITHDRAW"
	MessageManeuverIntent        MessageType = "MANEUVER_INTENT"
	MessageManeuverStatus        MessageType = "MANEUVER_STATUS"
	MessageHeartbeat             MessageType = "HEARTBEAT"
	MessageError                 MessageType = "ERROR"
)

// KnownMessageTypes is used by the envelope codec to reject unknown types.
var KnownMessageTypes = map[MessageType]bool{
	MessageHello:               true,
	MessageObjectStateAnnounce: true,
	MessageObjectStateWithdraw: true,
	MessageCDMAnnounce:         true,
	MessageCDMWithdraw:         true,
	MessageManeuverIntent:      true,
	MessageManeuverStatus:      true,
	MessageHeartbeat:           true,
	MessageError:               true,
}

// ErrorCode is the closed set of codes carried on an ERROR envelope.
type ErrorCode string

const (
	ErrorInvalidMessage      ErrorCode = "INVALID_MESSAGE"
	ErrorUnsupportedVersion  ErrorCode = "UNSUPPORTED_VERSION"
	ErrorUnauthorized        ErrorCode = "UNAUTHORIZED"
	ErrorRateLimited         ErrorCode = "RATE_LIMITED"
	ErrorInternal            ErrorCode = "INTERNAL_ERROR"
)

// Envelope is the versioned message wrapper carried over every peer channel.
type Envelope struct {
	ProtocolVersion string          `json:"protocol_version"`
	MessageID       string          `json:"message_id"`
	Timestamp       time.Time       `json:"timestamp"`
	SourceNodeID    string          `json:"source_node_id"`
	MessageType     MessageType     `json:"message_type"`
	HopCount        int             `json:"hop_count"`
	TTL             int             `json:"ttl"`
	Payload         json.RawMessage `json:"payload"`

	// RelatedMessageID is only set on ERROR envelopes.
	RelatedMessageID string `json:"related_message_id,omitempty"`
	// ErrorCode is only set on ERROR envelopes.
	ErrorCode ErrorCode `json:"error_code,omitempty"`
}

// Clone returns a deep copy suitable for mutating (hop_count++) before
// forwarding to a peer, without aliasing the original's Payload bytes.
func (e Envelope) Clone() Envelope {
	clone := e
	if e.Payload != nil {
		clone.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	return clone
}

// Forward produces the envelope this node re-emits to a peer: hop_count+1,
// message_id/ttl/source_node_id/timestamp unchanged (spec §4.5 step 7).
func (e Envelope) Forward() Envelope {
	out := e.Clone()
	out.HopCount = e.HopCount + 1
	return out
}
