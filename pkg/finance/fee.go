// Package finance computes application processing fees and aggregates the
// payments collected for them.
package finance

import (
	"github.com/Varshaa-Selva/Languard-ai/pkg/regulation"
)

// Fee schedule. Amounts are whole rupees.
const (
	BaseFee       int64 = 500
	PerFloorFee   int64 = 100
	perMilleScale int64 = 1000
)

// areaTiers are checked in order; the first threshold exceeded applies.
var areaTiers = []struct {
	overSqm float64
	charge  int64
}{
	{5000, 500},
	{3000, 300},
	{1500, 150},
}

// zoneMultipliers are per-mille so the calculation stays in integers.
var zoneMultipliers = map[string]int64{
	regulation.ZoneResidential: 1000,
	regulation.ZoneCommercial:  1500,
	regulation.ZoneAirport:     2000,
	regulation.ZoneEco:         1800,
}

// Quote is the itemised fee for one application.
type Quote struct {
	ZoneID      string  `json:"zone_id"`
	BaseFee     int64   `json:"base_fee"`
	AreaCharge  int64   `json:"area_charge"`
	FloorCharge int64   `json:"floor_charge"`
	Subtotal    int64   `json:"subtotal"`
	Multiplier  float64 `json:"multiplier"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
}

// ComputeFee returns the processing fee for an application. Unknown zones
// use a multiplier of 1.0. It never fails.
func ComputeFee(plotAreaSqm float64, proposedFloors int, zoneID string) int64 {
	return NewQuote(plotAreaSqm, proposedFloors, zoneID).Amount
}

// NewQuote returns the fee breakdown behind ComputeFee.
func NewQuote(plotAreaSqm float64, proposedFloors int, zoneID string) Quote {
	q := Quote{
		ZoneID:      zoneID,
		BaseFee:     BaseFee,
		AreaCharge:  areaCharge(plotAreaSqm),
		FloorCharge: int64(proposedFloors) * PerFloorFee,
		Currency:    CurrencyINR,
	}
	q.Subtotal = q.BaseFee + q.AreaCharge + q.FloorCharge

	m, ok := zoneMultipliers[zoneID]
	if !ok {
		m = perMilleScale
	}
	q.Multiplier = float64(m) / float64(perMilleScale)
	q.Amount = roundHalfUp(q.Subtotal*m, perMilleScale)
	return q
}

func areaCharge(sqm float64) int64 {
	for _, t := range areaTiers {
		if sqm > t.overSqm {
			return t.charge
		}
	}
	return 0
}

// roundHalfUp divides n by d rounding halves away from zero.
func roundHalfUp(n, d int64) int64 {
	if n < 0 {
		return -((-n + d/2) / d)
	}
	return (n + d/2) / d
}
