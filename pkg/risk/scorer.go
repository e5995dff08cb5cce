// Package risk fuses a compliance outcome with change metrics into a bounded
// score and band.
package risk

import (
	"math"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/sensing"
)

// Score components.
const (
	RejectionPoints      = 40.0
	LandCoverWeight      = 1.2
	LandCoverCap         = 35.0
	ElevationWeight      = 3.0
	ElevationCap         = 25.0
	LowBandUpperBound    = 30
	MediumBandUpperBound = 70
)

// Score computes the risk assessment for an application. Either input may be
// nil: a missing decision adds no rejection points and missing metrics add
// no change points. It never fails.
func Score(applicationID string, decision *contracts.ComplianceDecision, metrics *contracts.ChangeMetrics) contracts.RiskAssessment {
	var raw float64
	if decision != nil && !decision.Approved {
		raw += RejectionPoints
	}

	var flags sensing.Flags
	if metrics != nil {
		raw += math.Min(metrics.LandCoverChangePct*LandCoverWeight, LandCoverCap)
		raw += math.Min(metrics.ElevationDeltaM*ElevationWeight, ElevationCap)
		flags = sensing.DeriveFlags(*metrics)
	}

	score := int(math.Floor(math.Max(0, math.Min(100, raw)) + 0.5))

	return contracts.RiskAssessment{
		ApplicationID:            applicationID,
		Score:                    score,
		Band:                     BandFor(score),
		UnauthorizedChangeFlag:   flags.UnauthorizedChange,
		VerticalConstructionFlag: flags.VerticalConstruction,
	}
}

// BandFor classifies a score.
func BandFor(score int) contracts.RiskBand {
	switch {
	case score <= LowBandUpperBound:
		return contracts.RiskBandLow
	case score <= MediumBandUpperBound:
		return contracts.RiskBandMedium
	default:
		return contracts.RiskBandHigh
	}
}

// Distribution counts assessments per band.
type Distribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// Total is the number of assessments counted.
func (d Distribution) Total() int {
	return d.Low + d.Medium + d.High
}

// Summarize builds the band distribution of assessments.
func Summarize(assessments []contracts.RiskAssessment) Distribution {
	var d Distribution
	for _, a := range assessments {
		switch BandFor(a.Score) {
		case contracts.RiskBandLow:
			d.Low++
		case contracts.RiskBandMedium:
			d.Medium++
		default:
			d.High++
		}
	}
	return d
}
