// Package integrity re-verifies the decision ledger on a schedule.
package integrity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/Varshaa-Selva/Languard-ai/pkg/audit"
	"github.com/Varshaa-Selva/Languard-ai/pkg/ledger"
)

// DefaultSchedule runs verification hourly.
const DefaultSchedule = "@every 1h"

// Verifier checks the stored chain.
type Verifier interface {
	VerifyChain(ctx context.Context) (ledger.Verification, error)
}

// Monitor runs Verifier.VerifyChain on a cron schedule. It only reports
// violations; it never repairs the chain.
type Monitor struct {
	verifier Verifier
	schedule string
	audit    audit.Logger
	onBroken func(ledger.Verification)
	logger   *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	last    *ledger.Verification
	running bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithAudit records each run's outcome.
func WithAudit(l audit.Logger) Option {
	return func(m *Monitor) { m.audit = l }
}

// OnViolation is called with the report of every failed run.
func OnViolation(fn func(ledger.Verification)) Option {
	return func(m *Monitor) { m.onBroken = fn }
}

// NewMonitor validates schedule and returns a stopped monitor.
func NewMonitor(v Verifier, schedule string, opts ...Option) (*Monitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("integrity: invalid schedule %q: %w", schedule, err)
	}
	m := &Monitor{
		verifier: v,
		schedule: schedule,
		audit:    audit.Nop{},
		logger:   slog.Default().With("component", "integrity"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start schedules verification. Calling Start twice is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(m.schedule, func() {
		_, _ = m.RunOnce(audit.AsSystem(context.Background()))
	}); err != nil {
		return fmt.Errorf("integrity: schedule: %w", err)
	}
	c.Start()
	m.cron = c
	m.running = true
	m.logger.Info("integrity monitor started", "schedule", m.schedule)
	return nil
}

// Stop halts scheduling and waits for a running check to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	c := m.cron
	m.cron = nil
	m.running = false
	m.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
		m.logger.Info("integrity monitor stopped")
	}
}

// RunOnce verifies the chain immediately.
func (m *Monitor) RunOnce(ctx context.Context) (ledger.Verification, error) {
	v, err := m.verifier.VerifyChain(ctx)
	if err != nil {
		m.logger.Error("ledger verification failed to run", "error", err)
		return ledger.Verification{}, err
	}

	m.mu.Lock()
	m.last = &v
	m.mu.Unlock()

	meta := map[string]any{"valid": v.Valid, "checked": v.Checked, "head": v.Head}
	if !v.Valid {
		meta["first_broken_index"] = *v.FirstBrokenIndex
		meta["reason"] = v.Reason
		m.logger.Error("ledger integrity violation detected",
			"first_broken_index", *v.FirstBrokenIndex, "reason", v.Reason)
		if m.onBroken != nil {
			m.onBroken(v)
		}
	} else {
		m.logger.Info("ledger verified", "checked", v.Checked)
	}
	_ = m.audit.Record(ctx, audit.EventIntegrity, "ledger.verify", "ledger", meta)
	return v, nil
}

// Last returns the most recent report, if any run has completed.
func (m *Monitor) Last() (ledger.Verification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return ledger.Verification{}, false
	}
	return *m.last, true
}
