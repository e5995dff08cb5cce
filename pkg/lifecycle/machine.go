// Package lifecycle enforces the legal state transitions of a parcel
// application.
//
//	(none) → SUBMITTED → PAYMENT_PENDING → UNDER_REVIEW → APPROVED | REJECTED
//	         SUBMITTED ─────────────────→ UNDER_REVIEW
package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
)

// ErrInvalidTransition is matched by every *TransitionError.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// TransitionError describes a rejected transition.
type TransitionError struct {
	ApplicationID string
	From          contracts.ApplicationState
	To            contracts.ApplicationState
}

func (e *TransitionError) Error() string {
	from := string(e.From)
	if from == "" {
		from = "(none)"
	}
	return fmt.Sprintf("application %s: cannot move from %s to %s", e.ApplicationID, from, e.To)
}

// Is makes errors.Is(err, ErrInvalidTransition) succeed.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

var edges = map[contracts.ApplicationState][]contracts.ApplicationState{
	contracts.StateNone:           {contracts.StateSubmitted},
	contracts.StateSubmitted:      {contracts.StatePaymentPending, contracts.StateUnderReview},
	contracts.StatePaymentPending: {contracts.StateUnderReview},
	contracts.StateUnderReview:    {contracts.StateApproved, contracts.StateRejected},
}

// Allowed reports whether from → to is a legal edge.
func Allowed(from, to contracts.ApplicationState) bool {
	for _, s := range edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Record is one accepted transition.
type Record struct {
	From   contracts.ApplicationState `json:"from"`
	To     contracts.ApplicationState `json:"to"`
	Reason string                     `json:"reason,omitempty"`
	At     time.Time                  `json:"at"`
}

// Machine tracks the state of a single application. Transitions on one
// Machine are serialised; distinct machines never contend.
type Machine struct {
	mu            sync.Mutex
	applicationID string
	state         contracts.ApplicationState
	history       []Record
	clock         func() time.Time
}

// New returns a machine for an application that has not been submitted yet.
func New(applicationID string) *Machine {
	return &Machine{applicationID: applicationID, clock: time.Now}
}

// WithClock overrides the clock for testing.
func (m *Machine) WithClock(clock func() time.Time) *Machine {
	m.clock = clock
	return m
}

// ApplicationID returns the id the machine was created for.
func (m *Machine) ApplicationID() string {
	return m.applicationID
}

// State returns the current state.
func (m *Machine) State() contracts.ApplicationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns a copy of the accepted transitions, oldest first.
func (m *Machine) History() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.history))
	copy(out, m.history)
	return out
}

// Transition moves the machine to state to. An illegal edge returns a
// *TransitionError and leaves the state untouched.
func (m *Machine) Transition(to contracts.ApplicationState, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(to, reason)
}

// Expect runs fn only while the machine is in state want; fn's returned
// target state is then applied atomically. It lets callers perform a side
// effect (such as a ledger append) that must not race with other
// transitions of the same application.
func (m *Machine) Expect(want contracts.ApplicationState, fn func() (contracts.ApplicationState, string, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != want {
		return &TransitionError{ApplicationID: m.applicationID, From: m.state, To: want}
	}
	to, reason, err := fn()
	if err != nil {
		return err
	}
	return m.transitionLocked(to, reason)
}

func (m *Machine) transitionLocked(to contracts.ApplicationState, reason string) error {
	if !Allowed(m.state, to) {
		return &TransitionError{ApplicationID: m.applicationID, From: m.state, To: to}
	}
	m.history = append(m.history, Record{From: m.state, To: to, Reason: reason, At: m.clock().UTC()})
	m.state = to
	return nil
}

// Submit performs the submission transitions: SUBMITTED, then UNDER_REVIEW
// when the fee is already paid or PAYMENT_PENDING otherwise.
func (m *Machine) Submit(paid bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.transitionLocked(contracts.StateSubmitted, "application submitted"); err != nil {
		return err
	}
	if paid {
		return m.transitionLocked(contracts.StateUnderReview, "fee paid at submission")
	}
	return m.transitionLocked(contracts.StatePaymentPending, "awaiting fee payment")
}

// RecordDecision moves an application under review to its terminal state.
func (m *Machine) RecordDecision(v contracts.Verdict) error {
	to := contracts.StateRejected
	if v == contracts.VerdictApproved {
		to = contracts.StateApproved
	}
	return m.Transition(to, "compliance decision "+string(v))
}
