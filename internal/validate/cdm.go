// Package validate implements the CDM payload validator (spec §4.2): a
// pure, order-independent set of checks that fails with a structured error
// naming the first problem found. Every CDM check, including object_id
// distinctness, covariance diagonal sign and frame recognition, is
// hand-written, matching the teacher's style of small procedural checks in
// BootstrapGroup-style setup code. go-playground/validator (the library
// dittofs uses for its own config validation) is used only for struct-tag
// checks of other structs, such as the node config.
package validate

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/tamtunnel/spacecomms/internal/model"
)

var validate = validator.New()

// recognizedFrames is the set of reference frames the node understands.
// Spec does not enumerate them; GCRF/ITRF/TEME/RTN/EME2000 cover the practical set
// used by the conjunction-screening ecosystem this protocol interoperates
// with.
var recognizedFrames = map[string]bool{
	"GCRF": true,
	"ITRF": true,
	"TEME": true,
	"RTN":  true,
	"EME2000": true,
}

// Error names the first problem found, per spec §4.2.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cdm validation: %s: %s", e.Field, e.Message)
}

func fail(field, message string) error {
	return &Error{Field: field, Message: message}
}

// CDM validates a decoded CDM payload. Checks run in a fixed order but are
// logically independent of one another (spec: "order-independent").
func CDM(c model.CDM) error {
	if c.CDMID == "" {
		return fail("cdm_id", "required")
	}
	if c.Originator == "" {
		return fail("originator", "required")
	}
	if c.CreationDate.IsZero() {
		return fail("creation_date", "required")
	}
	if c.TCA.IsZero() {
		return fail("tca", "required")
	}
	if c.TCA.Before(c.CreationDate) {
		return fail("tca", "must not precede creation_date")
	}
	if c.MissDistanceM < 0 {
		return fail("miss_distance_m", "must be >= 0")
	}
	if c.CollisionProbability < 0 || c.CollisionProbability > 1 {
		return fail("collision_probability", "must be within [0,1]")
	}

	if c.Object1.ObjectID == "" {
		return fail("object1.object_id", "required")
	}
	if c.Object2.ObjectID == "" {
		return fail("object2.object_id", "required")
	}
	if c.Object1.ObjectID == c.Object2.ObjectID {
		return fail("object1.object_id", "must differ from object2.object_id")
	}

	if err := validateObject("object1", c.Object1); err != nil {
		return err
	}
	if err := validateObject("object2", c.Object2); err != nil {
		return err
	}

	if c.DataQualityScore != nil && (*c.DataQualityScore < 0 || *c.DataQualityScore > 1) {
		return fail("data_quality_score", "must be within [0,1]")
	}

	return nil
}

func validateObject(prefix string, obj model.ConjunctionObject) error {
	if !recognizedFrames[obj.State.ReferenceFrame] {
		return fail(prefix+".state.reference_frame", "unrecognized reference frame")
	}
	if !isFinite(obj.State.X) || !isFinite(obj.State.Y) || !isFinite(obj.State.Z) ||
		!isFinite(obj.State.VX) || !isFinite(obj.State.VY) || !isFinite(obj.State.VZ) {
		return fail(prefix+".state", "state vector components must be finite numbers")
	}
	if obj.Covariance != nil {
		for i := 0; i < 6; i++ {
			if obj.Covariance.Elements[i][i] < 0 {
				return fail(prefix+".covariance", "diagonal entries must be non-negative")
			}
		}
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Struct validates any struct carrying `validate` tags (configuration,
// API request bodies) using go-playground/validator.
func Struct(v interface{}) error {
	return validate.Struct(v)
}
