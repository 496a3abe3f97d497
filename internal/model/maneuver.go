package model

import "time"

// ManeuverType is the closed set of maneuver intent classifications.
type ManeuverType string

const (
	ManeuverCollisionAvoidance ManeuverType = "COLLISION_AVOIDANCE"
	ManeuverStationKeeping     ManeuverType = "STATION_KEEPING"
	ManeuverDeorbit            ManeuverType = "DEORBIT"
	ManeuverOther              ManeuverType = "OTHER"
)

// ManeuverStatusValue is the closed set of maneuver execution states.
// maneuverRank below defines the monotonic transition order enforced by
// the record store (spec §3 "Status transitions are monotonic").
type ManeuverStatusValue string

const (
	ManeuverPlanned    ManeuverStatusValue = "PLANNED"
	ManeuverInProgress ManeuverStatusValue = "IN_PROGRESS"
	ManeuverCompleted  ManeuverStatusValue = "COMPLETED"
	ManeuverCancelled  ManeuverStatusValue = "CANCELLED"
	ManeuverFailed     ManeuverStatusValue = "FAILED"
)

// IsTerminal reports whether the status cannot transition further.
func (s ManeuverStatusValue) IsTerminal() bool {
	switch s {
	case ManeuverCompleted, ManeuverCancelled, ManeuverFailed:
		return true
	default:
		return false
	}
}

// maneuverRank orders statuses for the monotonicity check; terminal states
// all rank above in-progress states but are mutually exclusive once reached
// (checked separately via IsTerminal on the stored value).
var maneuverRank = map[ManeuverStatusValue]int{
	ManeuverPlanned:    0,
	ManeuverInProgress: 1,
	ManeuverCompleted:  2,
	ManeuverCancelled:  2,
	ManeuverFailed:     2,
}

// CanTransition reports whether moving from "from" to "to" is monotonic:
// rank must not decrease, and a terminal "from" admits no further change.
func CanTransition(from, to ManeuverStatusValue) bool {
	if from.IsTerminal() {
		return false
	}
	return maneuverRank[to] >= maneuverRank[from]
}

// Maneuver is a maneuver intent/status record as held by the store.
type Maneuver struct {
	ManeuverID string       `json:"maneuver_id"`
	Originator string       `json:"originator"`
	Type       ManeuverType `json:"type"`

	PlannedStart    time.Time `json:"planned_start"`
	PlannedDuration time.Duration `json:"planned_duration"`
	PlannedDeltaV   float64   `json:"planned_delta_v_m_s"`
	PredictedState  *StateVector `json:"predicted_state,omitempty"`

	Status      ManeuverStatusValue `json:"status"`
	ActualStart time.Time           `json:"actual_start,omitempty"`
	ActualEnd   time.Time           `json:"actual_end,omitempty"`
	ActualDeltaV float64            `json:"actual_delta_v_m_s,omitempty"`

	OriginNodeID string `json:"-"`
}
