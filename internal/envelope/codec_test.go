package envelope

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tamtunnel/spacecomms/internal/model"
)

func sampleEnvelope() model.Envelope {
	return model.Envelope{
		ProtocolVersion: "1.0",
		MessageID:       "msg-1",
		Timestamp:       time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		SourceNodeID:    "node-a",
		MessageType:     model.MessageCDMAnnounce,
		HopCount:        0,
		TTL:             10,
		Payload:         json.RawMessage(`{"cdm_id":"CDM-1","future_field":"keep-me"}`),
	}
}

func TestRoundTrip(t *testing.T) {
	original := sampleEnvelope()
	encoded, err := Encode(original)
	require.NoError(t, err)

	decoded, err := Decode(encoded, DefaultLimits())
	require.NoError(t, err)

	require.Equal(t, original.MessageID, decoded.MessageID)
	require.Equal(t, original.ProtocolVersion, decoded.ProtocolVersion)
	require.Equal(t, original.SourceNodeID, decoded.SourceNodeID)
	require.Equal(t, original.MessageType, decoded.MessageType)
	require.Equal(t, original.HopCount, decoded.HopCount)
	require.Equal(t, original.TTL, decoded.TTL)
	require.True(t, original.Timestamp.Equal(decoded.Timestamp))
	require.JSONEq(t, string(original.Payload), string(decoded.Payload))
}

func TestForwardCompatibilityPreservesUnknownPayloadFields(t *testing.T) {
	original := sampleEnvelope()
	encoded, err := Encode(original)
	require.NoError(t, err)

	var roundTripped map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &roundTripped))

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(roundTripped["payload"], &payload))
	require.Contains(t, payload, "future_field")
}

func TestDecodeRejectsUnknownMessageType(t *testing.T) {
	original := sampleEnvelope()
	raw, err := Encode(original)
	require.NoError(t, err)

	mutated := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(raw, &mutated))
	mutated["message_type"] = "NOT_A_REAL_TYPE"
	raw, err = json.Marshal(mutated)
	require.NoError(t, err)

	_, err = Decode(raw, DefaultLimits())
	require.Error(t, err)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, FailureUnknownType, decodeErr.Kind)
}

func TestDecodeRejectsMissingField(t *testing.T) {
	_, err := Decode([]byte(`{"protocol_version":"1.0"}`), DefaultLimits())
	require.Error(t, err)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, FailureMissingField, decodeErr.Kind)
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`), DefaultLimits())
	require.Error(t, err)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, FailureInvalidJSON, decodeErr.Kind)
}

func TestDecodeEnforcesMaxHopCount(t *testing.T) {
	original := sampleEnvelope()
	original.TTL = 50
	raw, err := Encode(original)
	require.NoError(t, err)

	_, err = Decode(raw, Limits{MaxHopCount: 10, MaxBytes: 1 << 20})
	require.Error(t, err)
}

func TestDecodeEnforcesFixedTTLForHeartbeat(t *testing.T) {
	env := sampleEnvelope()
	env.MessageType = model.MessageHeartbeat
	env.TTL = 5
	raw, err := Encode(env)
	require.NoError(t, err)

	_, err = Decode(raw, DefaultLimits())
	require.Error(t, err)
}

func TestNegotiateSameMajor(t *testing.T) {
	v10 := Version{1, 0}
	v11 := Version{1, 1}
	got, ok := Negotiate(v11, []Version{v10, v11}, v10, []Version{v10})
	require.True(t, ok)
	require.Equal(t, v10, got)
}

func TestNegotiateMajorMismatchFails(t *testing.T) {
	_, ok := Negotiate(Version{1, 0}, []Version{{1, 0}}, Version{2, 0}, []Version{{2, 0}})
	require.False(t, ok)
}
