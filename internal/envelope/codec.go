// Package envelope implements the versioned message envelope codec:
// decode validation, deterministic encode, and the forward-compatibility
// invariant that unknown optional payload fields survive a round-trip
// untouched. Grounded on the teacher's protocol.go RPCHeader/version check
// (checkRPCHeader) generalized from a single-version gate to the full
// decode validation spec §4.1 requires.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tamtunnel/spacecomms/internal/model"
)

// FailureKind is the closed set of structural decode failures (spec §4.1).
type FailureKind string

const (
	FailureInvalidJSON FailureKind = "invalid_json"
	FailureMissingField FailureKind = "missing_field"
	FailureBadValue     FailureKind = "bad_value"
	FailureUnknownType  FailureKind = "unknown_type"
	FailureOversized    FailureKind = "oversized"
)

// DecodeError names the offending field alongside the failure kind.
type DecodeError struct {
	Kind  FailureKind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("envelope decode: %s (field %q): %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("envelope decode: %s (field %q)", e.Kind, e.Field)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Limits bounds the codec's acceptance of a wire envelope.
type Limits struct {
	MaxHopCount   int
	MaxBytes      int
}

// DefaultLimits matches spec §4.1's defaults (max_hop_count = 10).
func DefaultLimits() Limits {
	return Limits{MaxHopCount: 10, MaxBytes: 1 << 20}
}

// wireEnvelope fixes the required-field order in Encode's output so two
// encodings of the same logical message agree on it (spec §4.1, last
// sentence); the optional fields follow them, and encoding/json writes all
// fields in struct declaration order.
type wireEnvelope struct {
	ProtocolVersion  string              `json:"protocol_version"`
	MessageID        string              `json:"message_id"`
	Timestamp        string              `json:"timestamp"`
	SourceNodeID     string              `json:"source_node_id"`
	MessageType      model.MessageType   `json:"message_type"`
	HopCount         int                 `json:"hop_count"`
	TTL              int                 `json:"ttl"`
	Payload          json.RawMessage     `json:"payload"`
	RelatedMessageID string              `json:"related_message_id,omitempty"`
	ErrorCode        model.ErrorCode     `json:"error_code,omitempty"`
}

// fixedTTLOne reports whether a message type must carry ttl exactly 1
// (HELLO, HEARTBEAT and ERROR); other types are bounded by max_hop_count.
func fixedTTLOne(t model.MessageType) bool {
	switch t {
	case model.MessageHello, model.MessageHeartbeat, model.MessageError:
		return true
	default:
		return false
	}
}

// Decode validates and parses a wire envelope, preserving unknown payload
// fields for later re-encoding.
func Decode(raw []byte, limits Limits) (model.Envelope, error) {
	if limits.MaxBytes > 0 && len(raw) > limits.MaxBytes {
		return model.Envelope{}, &DecodeError{Kind: FailureOversized, Field: "<envelope>"}
	}

	var w wireEnvelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&w); err != nil {
		return model.Envelope{}, &DecodeError{Kind: FailureInvalidJSON, Field: "<envelope>", Err: err}
	}

	if w.ProtocolVersion == "" {
		return model.Envelope{}, &DecodeError{Kind: FailureMissingField, Field: "protocol_version"}
	}
	if w.MessageID == "" {
		return model.Envelope{}, &DecodeError{Kind: FailureMissingField, Field: "message_id"}
	}
	if w.SourceNodeID == "" {
		return model.Envelope{}, &DecodeError{Kind: FailureMissingField, Field: "source_node_id"}
	}
	if w.Timestamp == "" {
		return model.Envelope{}, &DecodeError{Kind: FailureMissingField, Field: "timestamp"}
	}
	ts, err := parseTimestamp(w.Timestamp)
	if err != nil {
		return model.Envelope{}, &DecodeError{Kind: FailureBadValue, Field: "timestamp", Err: err}
	}

	if w.MessageType == "" {
		return model.Envelope{}, &DecodeError{Kind: FailureMissingField, Field: "message_type"}
	}
	if !model.KnownMessageTypes[w.MessageType] {
		return model.Envelope{}, &DecodeError{Kind: FailureUnknownType, Field: "message_type"}
	}

	if w.HopCount < 0 {
		return model.Envelope{}, &DecodeError{Kind: FailureBadValue, Field: "hop_count"}
	}

	if fixedTTLOne(w.MessageType) {
		if w.TTL != 1 {
			return model.Envelope{}, &DecodeError{Kind: FailureBadValue, Field: "ttl"}
		}
	} else {
		if w.TTL < 1 {
			return model.Envelope{}, &DecodeError{Kind: FailureBadValue, Field: "ttl"}
		}
		if limits.MaxHopCount > 0 && w.TTL > limits.MaxHopCount {
			return model.Envelope{}, &DecodeError{Kind: FailureBadValue, Field: "ttl"}
		}
	}

	env := model.Envelope{
		ProtocolVersion:  w.ProtocolVersion,
		MessageID:        w.MessageID,
		Timestamp:        ts,
		SourceNodeID:     w.SourceNodeID,
		MessageType:      w.MessageType,
		HopCount:         w.HopCount,
		TTL:              w.TTL,
		Payload:          w.Payload,
		RelatedMessageID: w.RelatedMessageID,
		ErrorCode:        w.ErrorCode,
	}

	if w.MessageType == model.MessageError && env.ErrorCode == "" {
		return model.Envelope{}, &DecodeError{Kind: FailureMissingField, Field: "error_code"}
	}

	return env, nil
}

// Validate re-applies the decode-time structural checks to an already
// in-memory envelope (spec §4.5 step 1), for channels that hand sessions a
// parsed model.Envelope directly rather than raw bytes.
func Validate(env model.Envelope, limits Limits) error {
	if env.ProtocolVersion == "" {
		return &DecodeError{Kind: FailureMissingField, Field: "protocol_version"}
	}
	if env.MessageID == "" {
		return &DecodeError{Kind: FailureMissingField, Field: "message_id"}
	}
	if env.SourceNodeID == "" {
		return &DecodeError{Kind: FailureMissingField, Field: "source_node_id"}
	}
	if env.Timestamp.IsZero() {
		return &DecodeError{Kind: FailureMissingField, Field: "timestamp"}
	}
	if env.MessageType == "" {
		return &DecodeError{Kind: FailureMissingField, Field: "message_type"}
	}
	if !model.KnownMessageTypes[env.MessageType] {
		return &DecodeError{Kind: FailureUnknownType, Field: "message_type"}
	}
	if env.HopCount < 0 {
		return &DecodeError{Kind: FailureBadValue, Field: "hop_count"}
	}
	if fixedTTLOne(env.MessageType) {
		if env.TTL != 1 {
			return &DecodeError{Kind: FailureBadValue, Field: "ttl"}
		}
	} else {
		if env.TTL < 1 {
			return &DecodeError{Kind: FailureBadValue, Field: "ttl"}
		}
		if limits.MaxHopCount > 0 && env.TTL > limits.MaxHopCount {
			return &DecodeError{Kind: FailureBadValue, Field: "ttl"}
		}
	}
	if env.MessageType == model.MessageError && env.ErrorCode == "" {
		return &DecodeError{Kind: FailureMissingField, Field: "error_code"}
	}
	return nil
}

// Encode serializes an envelope deterministically: required fields in
// fixed order, payload preserved byte-for-byte (so unknown optional
// sub-fields round-trip verbatim).
func Encode(env model.Envelope) ([]byte, error) {
	w := wireEnvelope{
		ProtocolVersion:  env.ProtocolVersion,
		MessageID:        env.MessageID,
		Timestamp:        env.Timestamp.UTC().Format(timestampLayout),
		SourceNodeID:     env.SourceNodeID,
		MessageType:      env.MessageType,
		HopCount:         env.HopCount,
		TTL:              env.TTL,
		Payload:          env.Payload,
		RelatedMessageID: env.RelatedMessageID,
		ErrorCode:        env.ErrorCode,
	}
	return json.Marshal(w)
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// parseTimestamp accepts RFC3339 (with or without fractional seconds), the
// precision spec §3 requires (millisecond).
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
