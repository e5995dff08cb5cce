// Package sensing turns remote-sensing collaborator output into bounded
// ChangeMetrics and derives the regulatory flags from them.
package sensing

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
)

// ErrInvalidReport is returned for reports carrying NaN or infinite values.
var ErrInvalidReport = errors.New("invalid sensing report")

// Regulatory flag thresholds. Both bounds are exclusive.
const (
	UnauthorizedChangeThresholdPct = 15.0
	VerticalConstructionThresholdM = 5.0
)

// SatelliteReport is the change-detection output for one parcel.
type SatelliteReport struct {
	LandCoverChangePct float64 `json:"land_cover_change_pct"`
	VegetationLossPct  float64 `json:"vegetation_loss_pct"`
	BuiltUpIncreasePct float64 `json:"built_up_increase_pct"`
}

// ElevationReport carries the surveyed terrain height before and after.
type ElevationReport struct {
	OldElevationM float64 `json:"old_elevation_m"`
	NewElevationM float64 `json:"new_elevation_m"`
}

// Flags are the derived regulatory signals.
type Flags struct {
	UnauthorizedChange   bool `json:"unauthorized_change"`
	VerticalConstruction bool `json:"vertical_construction"`
}

// Normalize validates a report and clamps percentages into [0,100]. The
// elevation delta is the absolute height change, or 0 without a survey.
func Normalize(sat SatelliteReport, elev *ElevationReport) (contracts.ChangeMetrics, error) {
	fields := []reading{
		{"land_cover_change_pct", sat.LandCoverChangePct},
		{"vegetation_loss_pct", sat.VegetationLossPct},
		{"built_up_increase_pct", sat.BuiltUpIncreasePct},
	}
	if elev != nil {
		fields = append(fields,
			reading{"old_elevation_m", elev.OldElevationM},
			reading{"new_elevation_m", elev.NewElevationM},
		)
	}
	for _, f := range fields {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return contracts.ChangeMetrics{}, fmt.Errorf("%w: %s is not a finite number", ErrInvalidReport, f.name)
		}
	}

	m := contracts.ChangeMetrics{
		LandCoverChangePct: clampPct(sat.LandCoverChangePct),
		VegetationLossPct:  clampPct(sat.VegetationLossPct),
		BuiltUpIncreasePct: clampPct(sat.BuiltUpIncreasePct),
	}
	if elev != nil {
		m.ElevationDeltaM = math.Abs(elev.NewElevationM - elev.OldElevationM)
	}
	return m, nil
}

// DeriveFlags applies the regulatory thresholds to m.
func DeriveFlags(m contracts.ChangeMetrics) Flags {
	return Flags{
		UnauthorizedChange:   m.LandCoverChangePct > UnauthorizedChangeThresholdPct,
		VerticalConstruction: m.ElevationDeltaM > VerticalConstructionThresholdM,
	}
}

// Any reports whether at least one flag is raised.
func (f Flags) Any() bool {
	return f.UnauthorizedChange || f.VerticalConstruction
}

// FlagReason describes the raised flags for officers, or "" when none are.
func FlagReason(f Flags) string {
	var parts []string
	if f.VerticalConstruction {
		parts = append(parts, "Unauthorized vertical construction")
	}
	if f.UnauthorizedChange {
		parts = append(parts, "excessive land cover change")
	}
	if len(parts) == 0 {
		return ""
	}
	reason := strings.Join(parts, " + ")
	return strings.ToUpper(reason[:1]) + reason[1:]
}

type reading struct {
	name string
	v    float64
}

func clampPct(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
