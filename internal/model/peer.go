package model

import "time"

// SessionPhase is a peer session's position in the state machine described
// in spec §4.4.
type SessionPhase string

const (
	PhaseIdle          SessionPhase = "Idle"
	PhaseDialing       SessionPhase = "Dialing"
	PhaseHelloSent     SessionPhase = "HelloSent"
	PhaseHelloReceived SessionPhase = "HelloReceived"
	PhaseActive        SessionPhase = "Active"
	PhaseClosing       SessionPhase = "Closing"
	PhaseClosed        SessionPhase = "Closed"
)

// PolicyAction is the per-peer forwarding decision from spec §4.5 step 6.
type PolicyAction string

const (
	PolicyAccept               PolicyAction = "accept"
	PolicyReject               PolicyAction = "reject"
	PolicyAcceptWithModification PolicyAction = "accept-with-modification"
)

// PeerFilter restricts which records a policy applies to.
type PeerFilter struct {
	ObjectOwner  []string      `mapstructure:"object_owner" yaml:"object_owner,omitempty"`
	ObjectType   []ObjectType  `mapstructure:"object_type" yaml:"object_type,omitempty"`
	Originator   []string      `mapstructure:"originator" yaml:"originator,omitempty"`
	MessageType  []MessageType `mapstructure:"message_type" yaml:"message_type,omitempty"`
}

// PeerPolicy decides whether a peer accepts/rejects/modifies a forwarded
// record. Unknown peers default to PolicyReject (spec §4.5 step 6).
type PeerPolicy struct {
	Action  PolicyAction `mapstructure:"action" yaml:"action"`
	Filters PeerFilter   `mapstructure:"filters" yaml:"filters"`
}

// PeerRecord is the configuration and live state kept for a single peer.
type PeerRecord struct {
	PeerID     string       `mapstructure:"id" yaml:"id"`
	Address    string       `mapstructure:"address" yaml:"address"`
	AuthToken  string       `mapstructure:"auth_token" yaml:"auth_token,omitempty"`
	Policy     PeerPolicy   `mapstructure:"policies" yaml:"policies"`

	Phase              SessionPhase `mapstructure:"-" yaml:"-"`
	LastHeartbeat      time.Time    `mapstructure:"-" yaml:"-"`
	MessagesSent       uint64       `mapstructure:"-" yaml:"-"`
	MessagesReceived   uint64       `mapstructure:"-" yaml:"-"`
	NegotiatedVersion  string       `mapstructure:"-" yaml:"-"`
}
