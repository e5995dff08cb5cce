package compliance

import (
	"errors"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/regulation"
)

// Outlook is the applicant-facing estimate shown before submission.
type Outlook string

const (
	OutlookLikelyApproved Outlook = "LIKELY_APPROVED"
	OutlookNeedsReview    Outlook = "NEEDS_REVIEW"
	OutlookLikelyRejected Outlook = "LIKELY_REJECTED"
)

// PreCheckResult is an advisory estimate. It is never committed to the ledger.
type PreCheckResult struct {
	Outlook    Outlook  `json:"outlook"`
	Violations []string `json:"violations"`
}

// PreCheck estimates the outcome of a full evaluation so an applicant can
// correct a draft before paying the processing fee.
func (e *Evaluator) PreCheck(app contracts.ParcelApplication) (PreCheckResult, error) {
	d, err := e.Evaluate(app)
	if err != nil {
		if errors.Is(err, regulation.ErrUnknownZone) {
			return PreCheckResult{Outlook: OutlookLikelyRejected, Violations: d.Violations}, nil
		}
		return PreCheckResult{}, err
	}
	if d.Approved {
		return PreCheckResult{Outlook: OutlookLikelyApproved, Violations: []string{}}, nil
	}

	outlook := OutlookNeedsReview
	if len(d.Violations) > 2 {
		outlook = OutlookLikelyRejected
	}
	return PreCheckResult{Outlook: outlook, Violations: d.Violations}, nil
}
