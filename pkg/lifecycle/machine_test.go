package lifecycle

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
)

func fixedClock() func() time.Time {
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestMachine_HappyPathWithPayment(t *testing.T) {
	m := New("APP-1").WithClock(fixedClock())

	require.NoError(t, m.Submit(false))
	assert.Equal(t, contracts.StatePaymentPending, m.State())

	require.NoError(t, m.Transition(contracts.StateUnderReview, "payment confirmed"))
	require.NoError(t, m.RecordDecision(contracts.VerdictApproved))
	assert.Equal(t, contracts.StateApproved, m.State())
	assert.True(t, m.State().IsTerminal())

	h := m.History()
	require.Len(t, h, 4)
	assert.Equal(t, contracts.StateNone, h[0].From)
	assert.Equal(t, contracts.StateSubmitted, h[0].To)
	assert.Equal(t, "payment confirmed", h[2].Reason)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), h[3].At)
}

func TestMachine_SubmitPaid(t *testing.T) {
	m := New("APP-2")
	require.NoError(t, m.Submit(true))
	assert.Equal(t, contracts.StateUnderReview, m.State())

	require.NoError(t, m.RecordDecision(contracts.VerdictRejected))
	assert.Equal(t, contracts.StateRejected, m.State())
}

func TestMachine_InvalidTransitionKeepsState(t *testing.T) {
	m := New("APP-3")
	require.NoError(t, m.Submit(true))
	require.NoError(t, m.RecordDecision(contracts.VerdictApproved))

	err := m.Transition(contracts.StateUnderReview, "reopen")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, contracts.StateApproved, te.From)
	assert.Equal(t, contracts.StateUnderReview, te.To)

	assert.Equal(t, contracts.StateApproved, m.State())
	assert.Len(t, m.History(), 3)
}

func TestAllowed_FullMatrix(t *testing.T) {
	states := []contracts.ApplicationState{
		contracts.StateNone, contracts.StateSubmitted, contracts.StatePaymentPending,
		contracts.StateUnderReview, contracts.StateApproved, contracts.StateRejected,
	}
	legal := map[[2]contracts.ApplicationState]bool{
		{contracts.StateNone, contracts.StateSubmitted}:             true,
		{contracts.StateSubmitted, contracts.StatePaymentPending}:   true,
		{contracts.StateSubmitted, contracts.StateUnderReview}:      true,
		{contracts.StatePaymentPending, contracts.StateUnderReview}: true,
		{contracts.StateUnderReview, contracts.StateApproved}:       true,
		{contracts.StateUnderReview, contracts.StateRejected}:       true,
	}
	for _, from := range states {
		for _, to := range states {
			assert.Equal(t, legal[[2]contracts.ApplicationState{from, to}], Allowed(from, to), "%q -> %q", from, to)
		}
	}
}

func TestMachine_DecisionBeforeReviewFails(t *testing.T) {
	m := New("APP-4")
	require.NoError(t, m.Submit(false))

	err := m.RecordDecision(contracts.VerdictApproved)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, contracts.StatePaymentPending, m.State())
}

func TestMachine_Expect(t *testing.T) {
	m := New("APP-5")
	require.NoError(t, m.Submit(true))

	called := false
	err := m.Expect(contracts.StatePaymentPending, func() (contracts.ApplicationState, string, error) {
		called = true
		return contracts.StateUnderReview, "", nil
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.False(t, called)

	boom := errors.New("boom")
	err = m.Expect(contracts.StateUnderReview, func() (contracts.ApplicationState, string, error) {
		return "", "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, contracts.StateUnderReview, m.State())

	err = m.Expect(contracts.StateUnderReview, func() (contracts.ApplicationState, string, error) {
		return contracts.StateRejected, "decided", nil
	})
	require.NoError(t, err)
	assert.Equal(t, contracts.StateRejected, m.State())
}

func TestMachine_ConcurrentDecisionsOnlyOneWins(t *testing.T) {
	m := New("APP-6")
	require.NoError(t, m.Submit(true))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := contracts.VerdictApproved
			if i%2 == 0 {
				v = contracts.VerdictRejected
			}
			if m.RecordDecision(v) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.True(t, m.State().IsTerminal())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	m, err := r.Create("APP-B")
	require.NoError(t, err)
	assert.Equal(t, "APP-B", m.ApplicationID())

	_, err = r.Create("APP-B")
	assert.Error(t, err)

	_, err = r.Create("APP-A")
	require.NoError(t, err)

	got, ok := r.Get("APP-B")
	require.True(t, ok)
	assert.Same(t, m, got)

	_, ok = r.Get("APP-Z")
	assert.False(t, ok)

	assert.Equal(t, []string{"APP-A", "APP-B"}, r.IDs())
	assert.Equal(t, 2, r.Len())
}
