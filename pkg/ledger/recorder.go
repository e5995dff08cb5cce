package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
)

// Recorder appends verdicts to a Store and verifies the chain held there.
// Appends are serialised; readers never observe an entry before its hash is
// final.
type Recorder struct {
	mu     sync.RWMutex
	store  Store
	next   uint64
	head   string
	logger *slog.Logger
}

// Open resumes the chain held in store. A broken chain is reported but does
// not prevent opening: new entries link to the last stored hash.
func Open(ctx context.Context, store Store) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("ledger: nil store")
	}
	entries, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load: %w", err)
	}

	r := &Recorder{
		store:  store,
		head:   GenesisHash,
		logger: slog.Default().With("component", "ledger"),
	}
	if n := len(entries); n > 0 {
		r.next = entries[n-1].SequenceNo + 1
		r.head = entries[n-1].Hash
	}

	if v := Verify(entries); !v.Valid {
		r.logger.Error("ledger chain broken on open",
			"first_broken_index", *v.FirstBrokenIndex, "reason", v.Reason)
	}
	r.logger.Info("ledger opened", "entries", len(entries), "head", r.head)
	return r, nil
}

// Append commits a verdict for an application at ts.
func (r *Recorder) Append(ctx context.Context, applicationID string, verdict contracts.Verdict, ts time.Time) (Entry, error) {
	if applicationID == "" {
		return Entry{}, errors.New("ledger: application id is required")
	}
	if verdict != contracts.VerdictApproved && verdict != contracts.VerdictRejected {
		return Entry{}, fmt.Errorf("ledger: invalid verdict %q", verdict)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e := Entry{
		SequenceNo:    r.next,
		ApplicationID: applicationID,
		Decision:      verdict,
		Timestamp:     ts.UTC(),
		PrevHash:      r.head,
	}
	h, err := ComputeHash(e)
	if err != nil {
		return Entry{}, err
	}
	e.Hash = h

	if err := r.store.Append(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("ledger: %w", err)
	}
	r.next++
	r.head = e.Hash

	r.logger.Info("verdict recorded",
		"application_id", applicationID, "verdict", verdict, "sequence_no", e.SequenceNo, "tx_id", e.TransactionID())
	return e, nil
}

// Entries returns every stored entry in sequence order.
func (r *Recorder) Entries(ctx context.Context) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.Load(ctx)
}

// VerifyChain re-reads the store and checks every link.
func (r *Recorder) VerifyChain(ctx context.Context) (Verification, error) {
	entries, err := r.Entries(ctx)
	if err != nil {
		return Verification{}, err
	}
	v := Verify(entries)
	if !v.Valid {
		r.logger.Error("ledger integrity violation",
			"first_broken_index", *v.FirstBrokenIndex, "reason", v.Reason)
	}
	return v, nil
}

// Head returns the hash of the last appended entry.
func (r *Recorder) Head() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.head
}

// Len returns the number of entries appended so far.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.next)
}
