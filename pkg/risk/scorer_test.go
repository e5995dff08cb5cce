package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
)

func TestScore_NoInputs(t *testing.T) {
	a := Score("APP-1", nil, nil)

	assert.Equal(t, 0, a.Score)
	assert.Equal(t, contracts.RiskBandLow, a.Band)
	assert.False(t, a.UnauthorizedChangeFlag)
	assert.False(t, a.VerticalConstructionFlag)
	assert.Equal(t, "APP-1", a.ApplicationID)
}

func TestScore_RejectedOnly(t *testing.T) {
	a := Score("APP-1", &contracts.ComplianceDecision{Approved: false}, nil)
	assert.Equal(t, 40, a.Score)
	assert.Equal(t, contracts.RiskBandMedium, a.Band)
}

func TestScore_Components(t *testing.T) {
	approved := &contracts.ComplianceDecision{Approved: true}
	rejected := &contracts.ComplianceDecision{Approved: false}

	tests := []struct {
		name     string
		decision *contracts.ComplianceDecision
		metrics  *contracts.ChangeMetrics
		score    int
		band     contracts.RiskBand
	}{
		{"approved quiet parcel", approved, &contracts.ChangeMetrics{LandCoverChangePct: 5, ElevationDeltaM: 1}, 9, contracts.RiskBandLow},
		{"land cover capped", approved, &contracts.ChangeMetrics{LandCoverChangePct: 80}, 35, contracts.RiskBandMedium},
		{"elevation capped", approved, &contracts.ChangeMetrics{ElevationDeltaM: 40}, 25, contracts.RiskBandLow},
		{"everything maxed", rejected, &contracts.ChangeMetrics{LandCoverChangePct: 100, ElevationDeltaM: 100}, 100, contracts.RiskBandHigh},
		{"half rounds up", approved, &contracts.ChangeMetrics{ElevationDeltaM: 0.5}, 2, contracts.RiskBandLow},
		{"upper medium bound", rejected, &contracts.ChangeMetrics{LandCoverChangePct: 25}, 70, contracts.RiskBandMedium},
		{"into high", rejected, &contracts.ChangeMetrics{LandCoverChangePct: 25, ElevationDeltaM: 1}, 73, contracts.RiskBandHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Score("APP-1", tt.decision, tt.metrics)
			assert.Equal(t, tt.score, a.Score)
			assert.Equal(t, tt.band, a.Band)
		})
	}
}

func TestScore_Flags(t *testing.T) {
	a := Score("APP-1", nil, &contracts.ChangeMetrics{LandCoverChangePct: 15.0001, ElevationDeltaM: 5.1})
	assert.True(t, a.UnauthorizedChangeFlag)
	assert.True(t, a.VerticalConstructionFlag)

	a = Score("APP-1", nil, &contracts.ChangeMetrics{LandCoverChangePct: 15, ElevationDeltaM: 5})
	assert.False(t, a.UnauthorizedChangeFlag)
	assert.False(t, a.VerticalConstructionFlag)
}

func TestBandFor(t *testing.T) {
	assert.Equal(t, contracts.RiskBandLow, BandFor(30))
	assert.Equal(t, contracts.RiskBandMedium, BandFor(31))
	assert.Equal(t, contracts.RiskBandMedium, BandFor(70))
	assert.Equal(t, contracts.RiskBandHigh, BandFor(71))
}

func TestSummarize(t *testing.T) {
	d := Summarize([]contracts.RiskAssessment{{Score: 0}, {Score: 30}, {Score: 45}, {Score: 71}, {Score: 100}})
	assert.Equal(t, Distribution{Low: 2, Medium: 1, High: 2}, d)
	assert.Equal(t, 5, d.Total())
}
