package integrity

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Varshaa-Selva/Languard-ai/pkg/audit"
	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/ledger"
)

type tamperStore struct {
	*ledger.MemoryStore
	tamper bool
}

func (s *tamperStore) Load(ctx context.Context) ([]ledger.Entry, error) {
	entries, err := s.MemoryStore.Load(ctx)
	if err != nil || !s.tamper || len(entries) < 2 {
		return entries, err
	}
	entries[1].Decision = contracts.VerdictRejected
	return entries, nil
}

func recorder(t *testing.T) (*ledger.Recorder, *tamperStore) {
	t.Helper()
	store := &tamperStore{MemoryStore: ledger.NewMemoryStore()}
	rec, err := ledger.Open(context.Background(), store)
	require.NoError(t, err)
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"APP-2026-00000001", "APP-2026-00000002", "APP-2026-00000003"} {
		_, err := rec.Append(context.Background(), id, contracts.VerdictApproved, ts)
		require.NoError(t, err)
	}
	return rec, store
}

func TestRunOnce_Valid(t *testing.T) {
	rec, _ := recorder(t)
	var buf bytes.Buffer
	m, err := NewMonitor(rec, "", WithAudit(audit.NewLoggerWithWriter(&buf)))
	require.NoError(t, err)

	_, ok := m.Last()
	assert.False(t, ok)

	v, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 3, v.Checked)
	assert.Contains(t, buf.String(), `"action":"ledger.verify"`)

	last, ok := m.Last()
	require.True(t, ok)
	assert.Equal(t, v, last)
}

func TestRunOnce_ReportsTampering(t *testing.T) {
	rec, store := recorder(t)
	store.tamper = true

	var reported []ledger.Verification
	m, err := NewMonitor(rec, DefaultSchedule, OnViolation(func(v ledger.Verification) {
		reported = append(reported, v)
	}))
	require.NoError(t, err)

	v, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Valid)
	require.Len(t, reported, 1)
	assert.Equal(t, 1, *reported[0].FirstBrokenIndex)
	assert.ErrorIs(t, v.Err(), ledger.ErrLedgerIntegrity)
}

type failingVerifier struct{}

func (failingVerifier) VerifyChain(context.Context) (ledger.Verification, error) {
	return ledger.Verification{}, errors.New("store unavailable")
}

func TestRunOnce_VerifierError(t *testing.T) {
	m, err := NewMonitor(failingVerifier{}, "")
	require.NoError(t, err)
	_, err = m.RunOnce(context.Background())
	assert.EqualError(t, err, "store unavailable")
	_, ok := m.Last()
	assert.False(t, ok)
}

func TestNewMonitor_RejectsBadSchedule(t *testing.T) {
	_, err := NewMonitor(failingVerifier{}, "every tuesday")
	assert.Error(t, err)
}

type countingVerifier struct{ n atomic.Int32 }

func (c *countingVerifier) VerifyChain(context.Context) (ledger.Verification, error) {
	c.n.Add(1)
	return ledger.Verify(nil), nil
}

func TestStartStop_RunsOnSchedule(t *testing.T) {
	cv := &countingVerifier{}
	m, err := NewMonitor(cv, "@every 1s")
	require.NoError(t, err)
	require.NoError(t, m.Start())
	require.NoError(t, m.Start())

	assert.Eventually(t, func() bool { return cv.n.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
	m.Stop()
	m.Stop()
}
