// Package compliance decides whether a parcel application satisfies the
// regulation of its zone. Evaluation is a pure function of the application
// and the catalog: no clock, no randomness, no hidden state.
package compliance

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/regulation"
)

// FootprintRatio is the assumed share of the plot covered by each floor.
// Whether it should become zone-specific is undecided.
const FootprintRatio = 0.6

// Fixed texts that appear verbatim in audit exports.
const (
	MsgUnknownZone = "Unknown zone type"
	MsgCompliant   = "All parameters within regulatory limits"
)

// Evaluator applies zoning rules to applications.
type Evaluator struct {
	catalog regulation.Lookuper
}

// NewEvaluator returns an Evaluator backed by catalog.
func NewEvaluator(catalog regulation.Lookuper) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Evaluate checks app against its zone's rule set.
//
// An unknown zone yields a rejected decision together with an error wrapping
// regulation.ErrUnknownZone; callers must not commit that decision.
func (e *Evaluator) Evaluate(app contracts.ParcelApplication) (contracts.ComplianceDecision, error) {
	rule, err := e.catalog.Lookup(app.ZoneID)
	if err != nil {
		d := contracts.ComplianceDecision{
			ApplicationID: app.ID,
			Approved:      false,
			Violations:    []string{MsgUnknownZone},
		}
		if errors.Is(err, regulation.ErrUnknownZone) {
			return d, err
		}
		return d, fmt.Errorf("resolve zone: %w", err)
	}

	farCalculated := FloorAreaRatio(app.ProposedFloors, app.PlotAreaSqm)

	var violations []string
	if app.ProposedFloors > rule.MaxFloors {
		violations = append(violations, fmt.Sprintf("Proposed %d floors exceeds maximum of %d floors for %s",
			app.ProposedFloors, rule.MaxFloors, rule.ZoneID))
	}
	if farCalculated > rule.FAR {
		violations = append(violations, fmt.Sprintf("Calculated FAR %.2f exceeds maximum FAR %s for %s",
			farCalculated, formatNumber(rule.FAR), rule.ZoneID))
	}
	if app.HasBasement && !rule.BasementAllowed {
		violations = append(violations, fmt.Sprintf("Basement construction violates basement prohibition for %s",
			rule.ZoneID))
	}

	approved := len(violations) == 0
	if approved {
		violations = []string{MsgCompliant}
	}

	return contracts.ComplianceDecision{
		ApplicationID: app.ID,
		Approved:      approved,
		Violations:    violations,
		FARCalculated: farCalculated,
		FARAllowed:    rule.FAR,
	}, nil
}

// FloorAreaRatio computes the FAR of a proposal. The expression is kept in
// its unreduced form (floors * area * ratio / area) so that a per-zone
// footprint can be substituted without changing the computation path.
func FloorAreaRatio(floors int, plotAreaSqm float64) float64 {
	return float64(floors) * plotAreaSqm * FootprintRatio / plotAreaSqm
}

// formatNumber renders a rule limit the way the published regulation does:
// shortest representation, no trailing zeros.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
