package model

import "time"

// ObjectType is the closed set of space-object classifications.
type ObjectType string

const (
	ObjectTypePayload    ObjectType = "PAYLOAD"
	ObjectTypeDebris     ObjectType = "DEBRIS"
	ObjectTypeRocketBody ObjectType = "ROCKET_BODY"
	ObjectTypeUnknown    ObjectType = "UNKNOWN"
)

// WithdrawReason is the closed set of reasons a record was withdrawn.
type WithdrawReason string

const (
	ReasonSuperseded       WithdrawReason = "SUPERSEDED"
	ReasonTCAPassed        WithdrawReason = "TCA_PASSED"
	ReasonFalsePositive    WithdrawReason = "FALSE_POSITIVE"
	ReasonError            WithdrawReason = "ERROR"
	ReasonDecayed          WithdrawReason = "DECAYED"
	ReasonManeuverComplete WithdrawReason = "MANEUVER_COMPLETE"
)

// Covariance is a 6x6 RTN-frame covariance matrix. Only the diagonal is
// validated by spec §4.2; the full matrix is carried opaquely otherwise.
type Covariance struct {
	Frame    string      `json:"frame"`
	Elements [6][6]float64 `json:"elements"`
}

// StateVector is position/velocity in a named reference frame at an epoch.
type StateVector struct {
	ReferenceFrame string    `json:"reference_frame"`
	Epoch          time.Time `json:"epoch"`
	X              float64   `json:"x_km"`
	Y              float64   `json:"y_km"`
	Z              float64   `json:"z_km"`
	VX             float64   `json:"vx_km_s"`
	VY             float64   `json:"vy_km_s"`
	VZ             float64   `json:"vz_km_s"`
}

// ConjunctionObject is one side of a CDM's object1/object2 pair.
type ConjunctionObject struct {
	ObjectID      string      `json:"object_id"`
	ObjectName    string      `json:"object_name"`
	ObjectType    ObjectType  `json:"object_type"`
	Maneuverable  bool        `json:"maneuverable"`
	State         StateVector `json:"state"`
	Covariance    *Covariance `json:"covariance,omitempty"`
}

// ScreeningData is an opaque, implementation-defined block carried verbatim.
type ScreeningData map[string]any

// CDM is a Conjunction Data Message record as held by the store.
type CDM struct {
	CDMID                string             `json:"cdm_id"`
	CreationDate         time.Time          `json:"creation_date"`
	Originator           string             `json:"originator"`
	MessageFor           string             `json:"message_for"`
	TCA                  time.Time          `json:"tca"`
	MissDistanceM        float64            `json:"miss_distance_m"`
	CollisionProbability float64            `json:"collision_probability"`
	Object1              ConjunctionObject  `json:"object1"`
	Object2              ConjunctionObject  `json:"object2"`
	RelativeState        *StateVector       `json:"relative_state,omitempty"`
	ScreeningData        ScreeningData      `json:"screening_data,omitempty"`

	// Transparency extensions (optional).
	DataQualityScore    *float64 `json:"data_quality_score,omitempty"`
	ConjunctionCategory string   `json:"conjunction_category,omitempty"`
	RecommendedAction   string   `json:"recommended_action,omitempty"`

	// Store bookkeeping, not part of the wire payload.
	Withdrawn       bool           `json:"-"`
	WithdrawReason  WithdrawReason `json:"-"`
	WithdrawnAt     time.Time      `json:"-"`
	OriginNodeID    string         `json:"-"`
}

// Object is the latest known state of a tracked object.
type Object struct {
	ObjectID      string      `json:"object_id"`
	ObjectName    string      `json:"object_name"`
	ObjectType    ObjectType  `json:"object_type"`
	OwnerOperator string      `json:"owner_operator"`
	State         StateVector `json:"state"`

	Withdrawn      bool           `json:"-"`
	WithdrawReason WithdrawReason `json:"-"`
	WithdrawnAt    time.Time      `json:"-"`
	OriginNodeID   string         `json:"-"`
}
