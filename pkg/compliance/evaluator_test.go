package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/regulation"
)

func app(zone string, area float64, floors int, basement bool) contracts.ParcelApplication {
	return contracts.ParcelApplication{
		ID:             "APP-2025-0001",
		OwnerName:      "R. Kumar",
		SurveyNumber:   "SY/2025/1234",
		PlotAreaSqm:    area,
		ProposedFloors: floors,
		ZoneID:         zone,
		HasBasement:    basement,
		Coordinates:    "12.9716, 77.5946",
	}
}

func TestEvaluate_Compliant(t *testing.T) {
	e := NewEvaluator(regulation.Default())

	d, err := e.Evaluate(app(regulation.ZoneResidential, 1000, 3, true))
	require.NoError(t, err)

	assert.True(t, d.Approved)
	assert.Equal(t, []string{MsgCompliant}, d.Violations)
	assert.InDelta(t, 1.8, d.FARCalculated, 1e-9)
	assert.Equal(t, 2.0, d.FARAllowed)
	assert.Equal(t, "APP-2025-0001", d.ApplicationID)
	assert.Equal(t, contracts.VerdictApproved, d.Verdict())
}

func TestEvaluate_FARBoundary(t *testing.T) {
	e := NewEvaluator(regulation.Default())

	// Five floors is within the Residential floor limit but FAR 3.0 is not.
	d, err := e.Evaluate(app(regulation.ZoneResidential, 1000, 5, false))
	require.NoError(t, err)

	assert.False(t, d.Approved)
	assert.InDelta(t, 3.0, d.FARCalculated, 1e-9)
	assert.Equal(t, []string{"Calculated FAR 3.00 exceeds maximum FAR 2 for Residential"}, d.Violations)
	assert.Equal(t, contracts.VerdictRejected, d.Verdict())
}

func TestEvaluate_ViolationOrder(t *testing.T) {
	e := NewEvaluator(regulation.Default())

	d, err := e.Evaluate(app(regulation.ZoneEco, 500, 4, true))
	require.NoError(t, err)

	require.Len(t, d.Violations, 3)
	assert.Equal(t, "Proposed 4 floors exceeds maximum of 2 floors for Eco Zone", d.Violations[0])
	assert.Equal(t, "Calculated FAR 2.40 exceeds maximum FAR 1 for Eco Zone", d.Violations[1])
	assert.Equal(t, "Basement construction violates basement prohibition for Eco Zone", d.Violations[2])
}

func TestEvaluate_FractionalLimitFormatting(t *testing.T) {
	e := NewEvaluator(regulation.Default())

	d, err := e.Evaluate(app(regulation.ZoneAirport, 2000, 3, false))
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Equal(t, []string{"Calculated FAR 1.80 exceeds maximum FAR 1.5 for Airport Zone"}, d.Violations)
}

func TestEvaluate_AirportOverLimit(t *testing.T) {
	e := NewEvaluator(regulation.Default())

	d, err := e.Evaluate(app(regulation.ZoneAirport, 2000, 4, false))
	require.NoError(t, err)
	assert.False(t, d.Approved)
	assert.Contains(t, d.Violations, "Calculated FAR 2.40 exceeds maximum FAR 1.5 for Airport Zone")
}

func TestEvaluate_UnknownZone(t *testing.T) {
	e := NewEvaluator(regulation.Default())

	d, err := e.Evaluate(app("Industrial", 1000, 2, false))
	require.Error(t, err)
	assert.ErrorIs(t, err, regulation.ErrUnknownZone)

	assert.False(t, d.Approved)
	assert.Equal(t, []string{MsgUnknownZone}, d.Violations)
	assert.Zero(t, d.FARCalculated)
	assert.Zero(t, d.FARAllowed)
}

func TestEvaluate_Deterministic(t *testing.T) {
	e := NewEvaluator(regulation.Default())
	a := app(regulation.ZoneCommercial, 3200, 9, true)

	first, err := e.Evaluate(a)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := e.Evaluate(a)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestEvaluate_ApprovedIffInformationalOnly(t *testing.T) {
	e := NewEvaluator(regulation.Default())

	for _, zone := range regulation.Default().ZoneIDs() {
		for floors := 1; floors <= 10; floors++ {
			for _, basement := range []bool{false, true} {
				d, err := e.Evaluate(app(zone, 1200, floors, basement))
				require.NoError(t, err)
				informational := len(d.Violations) == 1 && d.Violations[0] == MsgCompliant
				assert.Equal(t, d.Approved, informational, "%s/%d/%v", zone, floors, basement)
			}
		}
	}
}

func TestPreCheck(t *testing.T) {
	e := NewEvaluator(regulation.Default())

	tests := []struct {
		name    string
		app     contracts.ParcelApplication
		outlook Outlook
		count   int
	}{
		{"compliant", app(regulation.ZoneResidential, 1000, 2, false), OutlookLikelyApproved, 0},
		{"far only", app(regulation.ZoneResidential, 1000, 5, false), OutlookNeedsReview, 1},
		{"floors and far", app(regulation.ZoneResidential, 1000, 6, false), OutlookNeedsReview, 2},
		{"all three", app(regulation.ZoneEco, 1000, 3, true), OutlookLikelyRejected, 3},
		{"unknown zone", app("Industrial", 1000, 1, false), OutlookLikelyRejected, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := e.PreCheck(tt.app)
			require.NoError(t, err)
			assert.Equal(t, tt.outlook, r.Outlook)
			assert.Len(t, r.Violations, tt.count)
		})
	}
}
