package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tamtunnel/spacecomms/internal/model"
)

func validCDM() model.CDM {
	now := time.Now().UTC()
	return model.CDM{
		CDMID:                "CDM-2024-DEMO-001",
		Originator:            "node-a",
		CreationDate:          now,
		TCA:                   now.Add(2 * time.Hour),
		MissDistanceM:         120.5,
		CollisionProbability:  0.0003,
		Object1: model.ConjunctionObject{
			ObjectID: "NORAD-1",
			State:    model.StateVector{ReferenceFrame: "GCRF"},
		},
		Object2: model.ConjunctionObject{
			ObjectID: "NORAD-2",
			State:    model.StateVector{ReferenceFrame: "GCRF"},
		},
	}
}

func TestCDMValidAccepted(t *testing.T) {
	require.NoError(t, CDM(validCDM()))
}

func TestCDMRejectsSameObjectIDs(t *testing.T) {
	c := validCDM()
	c.Object2.ObjectID = c.Object1.ObjectID
	err := CDM(c)
	require.Error(t, err)
	require.Equal(t, "object1.object_id", err.(*Error).Field)
}

func TestCDMRejectsTCABeforeCreation(t *testing.T) {
	c := validCDM()
	c.TCA = c.CreationDate.Add(-time.Hour)
	err := CDM(c)
	require.Error(t, err)
	require.Equal(t, "tca", err.(*Error).Field)
}

func TestCDMRejectsOutOfRangeProbability(t *testing.T) {
	c := validCDM()
	c.CollisionProbability = 1.5
	require.Error(t, CDM(c))
}

func TestCDMRejectsNegativeMissDistance(t *testing.T) {
	c := validCDM()
	c.MissDistanceM = -1
	require.Error(t, CDM(c))
}

func TestCDMRejectsUnrecognizedFrame(t *testing.T) {
	c := validCDM()
	c.Object1.State.ReferenceFrame = "MARS_FIXED"
	require.Error(t, CDM(c))
}

func TestCDMRejectsNegativeCovarianceDiagonal(t *testing.T) {
	c := validCDM()
	cov := &model.Covariance{Frame: "RTN"}
	cov.Elements[0][0] = -1
	c.Object1.Covariance = cov
	require.Error(t, CDM(c))
}
