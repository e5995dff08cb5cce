// Package contracts defines the data shapes exchanged between the LandGuard
// decision components and their external collaborators (extraction, sensing,
// payment and reporting).
package contracts

// ParcelApplication is the structured output of the document extraction
// collaborator. It is immutable once compliance has been evaluated; a
// correction is a new application with a new ID.
type ParcelApplication struct {
	ID             string  `json:"id"`
	OwnerName      string  `json:"owner_name"`
	SurveyNumber   string  `json:"survey_number"`
	PlotAreaSqm    float64 `json:"plot_area_sqm"`
	ProposedFloors int     `json:"proposed_floors"`
	ZoneID         string  `json:"zone_id"`
	HasBasement    bool    `json:"has_basement"`
	Coordinates    string  `json:"coordinates"`
	Location       string  `json:"location,omitempty"`
}

// ComplianceDecision is derived from a ParcelApplication and its zone's
// regulation. Only Approved is authoritative: an approved decision still
// carries one informational entry in Violations.
type ComplianceDecision struct {
	ApplicationID string   `json:"application_id"`
	Approved      bool     `json:"approved"`
	Violations    []string `json:"violations"`
	FARCalculated float64  `json:"far_calculated"`
	FARAllowed    float64  `json:"far_allowed"`
}

// Verdict returns the ledger verdict for the decision.
func (d ComplianceDecision) Verdict() Verdict {
	if d.Approved {
		return VerdictApproved
	}
	return VerdictRejected
}

// ChangeMetrics is the normalized output of the remote-sensing collaborator.
type ChangeMetrics struct {
	LandCoverChangePct float64 `json:"land_cover_change_pct"`
	VegetationLossPct  float64 `json:"vegetation_loss_pct"`
	BuiltUpIncreasePct float64 `json:"built_up_increase_pct"`
	ElevationDeltaM    float64 `json:"elevation_delta_m"`
}

// RiskBand classifies a numeric risk score.
type RiskBand string

const (
	RiskBandLow    RiskBand = "LOW"
	RiskBandMedium RiskBand = "MEDIUM"
	RiskBandHigh   RiskBand = "HIGH"
)

// RiskAssessment fuses a compliance outcome with change metrics.
type RiskAssessment struct {
	ApplicationID            string   `json:"application_id"`
	Score                    int      `json:"score"`
	Band                     RiskBand `json:"band"`
	UnauthorizedChangeFlag   bool     `json:"unauthorized_change_flag"`
	VerticalConstructionFlag bool     `json:"vertical_construction_flag"`
}

// ApplicationState is the lifecycle status of a ParcelApplication.
type ApplicationState string

const (
	// StateNone is the state of an application that has not been submitted.
	StateNone           ApplicationState = ""
	StateSubmitted      ApplicationState = "SUBMITTED"
	StatePaymentPending ApplicationState = "PAYMENT_PENDING"
	StateUnderReview    ApplicationState = "UNDER_REVIEW"
	StateApproved       ApplicationState = "APPROVED"
	StateRejected       ApplicationState = "REJECTED"
)

// IsTerminal reports whether no further transition is possible.
func (s ApplicationState) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// Verdict is the decision value committed to the ledger.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
)

// PaymentMethod is the instrument used by the applicant.
type PaymentMethod string

const (
	PaymentUPI        PaymentMethod = "UPI"
	PaymentCard       PaymentMethod = "CARD"
	PaymentNetBanking PaymentMethod = "NET_BANKING"
)

// PaymentConfirmation is the signal received from the payment collaborator.
type PaymentConfirmation struct {
	Success       bool          `json:"success"`
	TransactionID string        `json:"transaction_id"`
	Method        PaymentMethod `json:"method,omitempty"`
	Amount        int64         `json:"amount,omitempty"`
}
