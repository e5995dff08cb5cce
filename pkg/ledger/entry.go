// Package ledger is the append-only, hash-chained record of committed
// compliance verdicts.
//
// Each entry's hash covers its predecessor's hash, so altering any stored
// field breaks every later link. The ledger only detects tampering; it never
// repairs the chain.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Varshaa-Selva/Languard-ai/pkg/canonicalize"
	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
)

// GenesisHash is the prev_hash of the first entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ErrLedgerIntegrity is matched by every *IntegrityViolationError.
var ErrLedgerIntegrity = errors.New("ledger integrity violation")

// Entry is one committed verdict.
type Entry struct {
	SequenceNo    uint64            `json:"sequence_no"`
	ApplicationID string            `json:"application_id"`
	Decision      contracts.Verdict `json:"decision"`
	Timestamp     time.Time         `json:"timestamp"`
	PrevHash      string            `json:"prev_hash"`
	Hash          string            `json:"hash"`

	// rawTimestamp holds a stored timestamp that did not parse. Such an
	// entry never verifies.
	rawTimestamp string
}

// TransactionID is the short receipt reference handed to applicants.
func (e Entry) TransactionID() string {
	if len(e.Hash) < 12 {
		return ""
	}
	return "TX-" + strings.ToUpper(e.Hash[:12])
}

// hashInput is the exact set of fields covered by Entry.Hash.
type hashInput struct {
	PrevHash      string `json:"prev_hash"`
	SequenceNo    uint64 `json:"sequence_no"`
	ApplicationID string `json:"application_id"`
	Decision      string `json:"decision"`
	Timestamp     string `json:"timestamp"`
}

// FormatTimestamp is the persisted and hashed representation of a timestamp.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ComputeHash returns the chain hash of e from its content fields.
func ComputeHash(e Entry) (string, error) {
	h, err := canonicalize.CanonicalHash(hashInput{
		PrevHash:      e.PrevHash,
		SequenceNo:    e.SequenceNo,
		ApplicationID: e.ApplicationID,
		Decision:      string(e.Decision),
		Timestamp:     FormatTimestamp(e.Timestamp),
	})
	if err != nil {
		return "", fmt.Errorf("hash entry %d: %w", e.SequenceNo, err)
	}
	return h, nil
}

// Verification is the result of a chain walk.
type Verification struct {
	Valid bool `json:"valid"`
	// FirstBrokenIndex is the index of the first entry whose link or hash
	// does not check out. Nil when Valid.
	FirstBrokenIndex *int   `json:"first_broken_index,omitempty"`
	Reason           string `json:"reason,omitempty"`
	Checked          int    `json:"checked"`
	Head             string `json:"head"`
}

// Err returns nil for a valid chain and an *IntegrityViolationError otherwise.
func (v Verification) Err() error {
	if v.Valid {
		return nil
	}
	idx := -1
	if v.FirstBrokenIndex != nil {
		idx = *v.FirstBrokenIndex
	}
	return &IntegrityViolationError{Index: idx, Reason: v.Reason}
}

// IntegrityViolationError reports where the chain breaks.
type IntegrityViolationError struct {
	Index  int
	Reason string
}

func (e *IntegrityViolationError) Error() string {
	return fmt.Sprintf("ledger integrity violation at entry %d: %s", e.Index, e.Reason)
}

// Is makes errors.Is(err, ErrLedgerIntegrity) succeed.
func (e *IntegrityViolationError) Is(target error) bool {
	return target == ErrLedgerIntegrity
}

// Verify walks entries from genesis and reports the first broken link.
func Verify(entries []Entry) Verification {
	prev := GenesisHash
	for i, e := range entries {
		reason := ""
		switch {
		case e.rawTimestamp != "":
			reason = fmt.Sprintf("timestamp %q is unreadable", e.rawTimestamp)
		case e.SequenceNo != uint64(i):
			reason = fmt.Sprintf("sequence_no %d, expected %d", e.SequenceNo, i)
		case e.PrevHash != prev:
			reason = "prev_hash does not match predecessor"
		default:
			h, err := ComputeHash(e)
			if err != nil {
				reason = err.Error()
			} else if h != e.Hash {
				reason = "hash does not match content"
			}
		}
		if reason != "" {
			idx := i
			return Verification{Valid: false, FirstBrokenIndex: &idx, Reason: reason, Checked: i + 1, Head: prev}
		}
		prev = e.Hash
	}
	return Verification{Valid: true, Checked: len(entries), Head: prev}
}
