// Package engine orchestrates the decision components: it owns the
// per-application lifecycle, commits verdicts to the ledger and fans the
// results out to audit, events and telemetry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Varshaa-Selva/Languard-ai/pkg/audit"
	"github.com/Varshaa-Selva/Languard-ai/pkg/compliance"
	"github.com/Varshaa-Selva/Languard-ai/pkg/contracts"
	"github.com/Varshaa-Selva/Languard-ai/pkg/events"
	"github.com/Varshaa-Selva/Languard-ai/pkg/finance"
	"github.com/Varshaa-Selva/Languard-ai/pkg/intake"
	"github.com/Varshaa-Selva/Languard-ai/pkg/ledger"
	"github.com/Varshaa-Selva/Languard-ai/pkg/lifecycle"
	"github.com/Varshaa-Selva/Languard-ai/pkg/regulation"
	"github.com/Varshaa-Selva/Languard-ai/pkg/risk"
	"github.com/Varshaa-Selva/Languard-ai/pkg/sensing"
)

var (
	// ErrNotFound is returned for unknown application ids.
	ErrNotFound = errors.New("application not found")
	// ErrPaymentFailed is returned when the payment collaborator reports failure.
	ErrPaymentFailed = errors.New("payment failed")
	// ErrDuplicateApplication is returned when an id is submitted twice.
	ErrDuplicateApplication = errors.New("application already submitted")
	// ErrNoScanSource is returned by Analyze when no sensing collaborator is configured.
	ErrNoScanSource = errors.New("no sensing collaborator configured")
	// ErrScanUnavailable wraps failures of the sensing collaborator.
	ErrScanUnavailable = errors.New("scan unavailable")
)

// Checker validates an application before it enters the lifecycle.
type Checker interface {
	Check(app contracts.ParcelApplication) error
}

// ScanSource fetches sensing output for an application.
type ScanSource interface {
	Fetch(ctx context.Context, applicationID string) (sensing.Scan, error)
}

// Telemetry receives operation spans and domain metrics.
type Telemetry interface {
	Track(ctx context.Context, name string) (context.Context, func(error))
	RecordDecision(ctx context.Context, verdict, zone string)
	RecordRisk(ctx context.Context, score int, band string)
}

type nopTelemetry struct{}

func (nopTelemetry) Track(ctx context.Context, _ string) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (nopTelemetry) RecordDecision(context.Context, string, string) {}
func (nopTelemetry) RecordRisk(context.Context, int, string)        {}

// DecisionRecorded is published on events.SubjectDecisionRecorded.
type DecisionRecorded struct {
	ApplicationID string            `json:"application_id"`
	ZoneID        string            `json:"zone_id"`
	Verdict       contracts.Verdict `json:"verdict"`
	Violations    []string          `json:"violations"`
	SequenceNo    uint64            `json:"sequence_no"`
	Hash          string            `json:"hash"`
	TransactionID string            `json:"transaction_id"`
	RecordedAt    time.Time         `json:"recorded_at"`
}

// RiskAssessed is published on events.SubjectRiskAssessed.
type RiskAssessed struct {
	contracts.RiskAssessment
	FlagReason string `json:"flag_reason,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithAudit records audit events to l.
func WithAudit(l audit.Logger) Option { return func(e *Engine) { e.audit = l } }

// WithPublisher publishes decision and risk events to p.
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.events = p } }

// WithTelemetry reports spans and metrics to t.
func WithTelemetry(t Telemetry) Option { return func(e *Engine) { e.telemetry = t } }

// WithChecker validates submissions with c.
func WithChecker(c Checker) Option { return func(e *Engine) { e.checker = c } }

// WithScanSource lets Analyze pull scans from s.
func WithScanSource(s ScanSource) Option { return func(e *Engine) { e.scans = s } }

// WithClock overrides the time source for ids, ledger timestamps and history.
func WithClock(clock func() time.Time) Option { return func(e *Engine) { e.clock = clock } }

type record struct {
	app         contracts.ParcelApplication
	quote       finance.Quote
	submittedAt time.Time
	payments    []contracts.PaymentConfirmation
	decision    *contracts.ComplianceDecision
	entry       *ledger.Entry
	metrics     *contracts.ChangeMetrics
	risk        *contracts.RiskAssessment
	machine     *lifecycle.Machine
}

// Engine is safe for concurrent use. Operations on one application are
// serialised by its lifecycle machine; ledger appends are serialised by the
// recorder.
type Engine struct {
	evaluator *compliance.Evaluator
	ledger    *ledger.Recorder
	registry  *lifecycle.Registry
	audit     audit.Logger
	events    events.Publisher
	telemetry Telemetry
	checker   Checker
	scans     ScanSource
	clock     func() time.Time
	logger    *slog.Logger

	mu      sync.RWMutex
	records map[string]*record
}

// New builds an engine over a regulation catalog and an opened ledger.
func New(catalog regulation.Lookuper, recorder *ledger.Recorder, opts ...Option) (*Engine, error) {
	if catalog == nil {
		return nil, errors.New("engine: catalog is required")
	}
	if recorder == nil {
		return nil, errors.New("engine: ledger recorder is required")
	}
	e := &Engine{
		evaluator: compliance.NewEvaluator(catalog),
		ledger:    recorder,
		registry:  lifecycle.NewRegistry(),
		audit:     audit.Nop{},
		events:    events.Nop{},
		telemetry: nopTelemetry{},
		clock:     time.Now,
		logger:    slog.Default().With("component", "engine"),
		records:   make(map[string]*record),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// NewApplicationID returns an id of the form APP-<year>-<8 hex>.
func NewApplicationID(now time.Time) string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("APP-%d-%s", now.Year(), strings.ToUpper(hex[:8]))
}

// Submit registers an application, prices it and starts its lifecycle. A
// successful payment moves it straight to UNDER_REVIEW; otherwise it waits in
// PAYMENT_PENDING.
func (e *Engine) Submit(ctx context.Context, app contracts.ParcelApplication, payment *contracts.PaymentConfirmation) (_ Snapshot, err error) {
	ctx, done := e.telemetry.Track(ctx, "engine.submit")
	defer func() { done(err) }()

	now := e.clock()
	if app.ID == "" {
		app.ID = NewApplicationID(now)
	}
	if err := e.validate(app); err != nil {
		return Snapshot{}, err
	}

	m, err := e.registry.Create(app.ID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrDuplicateApplication, app.ID)
	}
	m.WithClock(e.clock)

	quote := finance.NewQuote(app.PlotAreaSqm, app.ProposedFloors, app.ZoneID)
	rec := &record{app: app, quote: quote, submittedAt: now.UTC(), machine: m}

	paid := payment != nil && payment.Success
	if payment != nil {
		rec.payments = append(rec.payments, fillAmount(*payment, quote.Amount))
	}
	if err := m.Submit(paid); err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()
	e.records[app.ID] = rec
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "application submitted",
		"application_id", app.ID, "zone", app.ZoneID, "fee", quote.Amount, "state", m.State())
	_ = e.audit.Record(ctx, audit.EventSubmission, "application.submit", app.ID, map[string]any{
		"zone_id": app.ZoneID,
		"fee":     quote.Amount,
		"paid":    paid,
	})
	return e.snapshot(rec), nil
}

// ConfirmPayment applies a payment collaborator result to an application
// waiting in PAYMENT_PENDING. A failed payment is recorded but changes no
// state; outside PAYMENT_PENDING it is refused like a successful one.
func (e *Engine) ConfirmPayment(ctx context.Context, id string, payment contracts.PaymentConfirmation) (_ Snapshot, err error) {
	ctx, done := e.telemetry.Track(ctx, "engine.confirm_payment")
	defer func() { done(err) }()

	rec, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	payment = fillAmount(payment, rec.quote.Amount)

	if !payment.Success {
		if state := rec.machine.State(); state != contracts.StatePaymentPending {
			return Snapshot{}, &lifecycle.TransitionError{ApplicationID: id, From: state, To: contracts.StateUnderReview}
		}
		e.mu.Lock()
		rec.payments = append(rec.payments, payment)
		e.mu.Unlock()
		_ = e.audit.Record(ctx, audit.EventPayment, "payment.failed", id, map[string]any{"method": payment.Method})
		return Snapshot{}, fmt.Errorf("%w: %s", ErrPaymentFailed, id)
	}

	if err := rec.machine.Transition(contracts.StateUnderReview, "fee paid via "+string(payment.Method)); err != nil {
		return Snapshot{}, err
	}
	e.mu.Lock()
	rec.payments = append(rec.payments, payment)
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "payment confirmed", "application_id", id, "transaction_id", payment.TransactionID)
	_ = e.audit.Record(ctx, audit.EventPayment, "payment.confirmed", id, map[string]any{
		"transaction_id": payment.TransactionID,
		"method":         payment.Method,
		"amount":         payment.Amount,
	})
	return e.snapshot(rec), nil
}

// Evaluate runs the compliance check for an application under review, commits
// the verdict to the ledger and moves the application to its terminal state.
// An unknown zone fails without changing state or appending.
func (e *Engine) Evaluate(ctx context.Context, id string) (_ Snapshot, err error) {
	ctx, done := e.telemetry.Track(ctx, "engine.evaluate")
	defer func() { done(err) }()

	rec, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}

	var (
		decision contracts.ComplianceDecision
		entry    ledger.Entry
		rescored *contracts.RiskAssessment
		metrics  contracts.ChangeMetrics
	)
	err = rec.machine.Expect(contracts.StateUnderReview, func() (contracts.ApplicationState, string, error) {
		d, err := e.evaluator.Evaluate(rec.app)
		if err != nil {
			return "", "", err
		}
		ent, err := e.ledger.Append(ctx, id, d.Verdict(), e.clock())
		if err != nil {
			return "", "", err
		}
		decision, entry = d, ent

		// A scan assessed before the verdict is rescored with it.
		e.mu.Lock()
		rec.decision = &decision
		rec.entry = &entry
		if rec.metrics != nil {
			metrics = *rec.metrics
			a := risk.Score(id, &decision, &metrics)
			rec.risk = &a
			rescored = &a
		}
		e.mu.Unlock()

		to := contracts.StateRejected
		if d.Approved {
			to = contracts.StateApproved
		}
		return to, "compliance decision " + string(d.Verdict()), nil
	})
	if err != nil {
		if errors.Is(err, regulation.ErrUnknownZone) {
			e.logger.WarnContext(ctx, "evaluation refused", "application_id", id, "zone", rec.app.ZoneID)
		}
		return Snapshot{}, err
	}

	verdict := decision.Verdict()
	e.telemetry.RecordDecision(ctx, string(verdict), rec.app.ZoneID)
	_ = e.audit.Record(ctx, audit.EventDecision, "application.evaluate", id, map[string]any{
		"verdict":     verdict,
		"violations":  decision.Violations,
		"sequence_no": entry.SequenceNo,
		"hash":        entry.Hash,
	})
	e.publish(ctx, events.SubjectDecisionRecorded, DecisionRecorded{
		ApplicationID: id,
		ZoneID:        rec.app.ZoneID,
		Verdict:       verdict,
		Violations:    decision.Violations,
		SequenceNo:    entry.SequenceNo,
		Hash:          entry.Hash,
		TransactionID: entry.TransactionID(),
		RecordedAt:    entry.Timestamp,
	})
	if rescored != nil {
		e.reportRisk(ctx, id, *rescored, metrics)
	}
	return e.snapshot(rec), nil
}

// Assess normalises a sensing report and scores it together with the
// application's compliance decision, if one exists yet.
func (e *Engine) Assess(ctx context.Context, id string, sat sensing.SatelliteReport, elev *sensing.ElevationReport) (_ contracts.RiskAssessment, err error) {
	ctx, done := e.telemetry.Track(ctx, "engine.assess")
	defer func() { done(err) }()

	rec, err := e.lookup(id)
	if err != nil {
		return contracts.RiskAssessment{}, err
	}
	metrics, err := sensing.Normalize(sat, elev)
	if err != nil {
		return contracts.RiskAssessment{}, err
	}

	e.mu.Lock()
	assessment := risk.Score(id, rec.decision, &metrics)
	rec.metrics = &metrics
	rec.risk = &assessment
	e.mu.Unlock()

	e.reportRisk(ctx, id, assessment, metrics)
	return assessment, nil
}

// reportRisk fans a stored assessment out to telemetry, audit and events.
func (e *Engine) reportRisk(ctx context.Context, id string, assessment contracts.RiskAssessment, metrics contracts.ChangeMetrics) {
	reason := sensing.FlagReason(sensing.DeriveFlags(metrics))
	e.telemetry.RecordRisk(ctx, assessment.Score, string(assessment.Band))
	e.logger.InfoContext(ctx, "risk assessed",
		"application_id", id, "score", assessment.Score, "band", assessment.Band)
	_ = e.audit.Record(ctx, audit.EventAssessment, "application.assess", id, map[string]any{
		"score":       assessment.Score,
		"band":        assessment.Band,
		"flag_reason": reason,
	})
	e.publish(ctx, events.SubjectRiskAssessed, RiskAssessed{RiskAssessment: assessment, FlagReason: reason})
}

// Analyze fetches the application's scan from the sensing collaborator and
// assesses it.
func (e *Engine) Analyze(ctx context.Context, id string) (contracts.RiskAssessment, error) {
	if e.scans == nil {
		return contracts.RiskAssessment{}, ErrNoScanSource
	}
	if _, err := e.lookup(id); err != nil {
		return contracts.RiskAssessment{}, err
	}
	scan, err := e.scans.Fetch(ctx, id)
	if err != nil {
		return contracts.RiskAssessment{}, fmt.Errorf("%w: %s: %w", ErrScanUnavailable, id, err)
	}
	return e.Assess(ctx, id, scan.Satellite, scan.Elevation)
}

// PreCheck estimates the outcome without submitting anything.
func (e *Engine) PreCheck(app contracts.ParcelApplication) (compliance.PreCheckResult, error) {
	return e.evaluator.PreCheck(app)
}

// Get returns the current view of one application.
func (e *Engine) Get(id string) (Snapshot, error) {
	rec, err := e.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return e.snapshot(rec), nil
}

// List returns every application ordered by id.
func (e *Engine) List() []Snapshot {
	ids := e.registry.IDs()
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if rec, err := e.lookup(id); err == nil {
			out = append(out, e.snapshot(rec))
		}
	}
	return out
}

// Ledger returns the committed entries in sequence order.
func (e *Engine) Ledger(ctx context.Context) ([]ledger.Entry, error) {
	return e.ledger.Entries(ctx)
}

// VerifyLedger re-checks the whole chain.
func (e *Engine) VerifyLedger(ctx context.Context) (ledger.Verification, error) {
	return e.ledger.VerifyChain(ctx)
}

// RiskDistribution counts the latest assessment of each application by band.
func (e *Engine) RiskDistribution() risk.Distribution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	assessments := make([]contracts.RiskAssessment, 0, len(e.records))
	for _, rec := range e.records {
		if rec.risk != nil {
			assessments = append(assessments, *rec.risk)
		}
	}
	return risk.Summarize(assessments)
}

// Revenue sums every successful payment.
func (e *Engine) Revenue() finance.Money {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var payments []contracts.PaymentConfirmation
	for _, rec := range e.records {
		payments = append(payments, rec.payments...)
	}
	return finance.TotalRevenue(payments)
}

// Stats is the dashboard summary.
type Stats struct {
	Applications int                                `json:"applications"`
	ByState      map[contracts.ApplicationState]int `json:"by_state"`
	Revenue      finance.Money                      `json:"revenue"`
	Risk         risk.Distribution                  `json:"risk"`
	LedgerLength int                                `json:"ledger_length"`
	LedgerHead   string                             `json:"ledger_head"`
}

// Stats summarises applications, revenue, risk and the ledger.
func (e *Engine) Stats() Stats {
	s := Stats{ByState: map[contracts.ApplicationState]int{}}
	for _, snap := range e.List() {
		s.Applications++
		s.ByState[snap.State]++
	}
	s.Revenue = e.Revenue()
	s.Risk = e.RiskDistribution()
	s.LedgerLength = e.ledger.Len()
	s.LedgerHead = e.ledger.Head()
	return s
}

func (e *Engine) lookup(id string) (*record, error) {
	e.mu.RLock()
	rec, ok := e.records[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, nil
}

func (e *Engine) validate(app contracts.ParcelApplication) error {
	if e.checker != nil {
		return e.checker.Check(app)
	}
	var problems []string
	if !(app.PlotAreaSqm > 0) {
		problems = append(problems, "plot_area_sqm must be positive")
	}
	if app.ProposedFloors <= 0 {
		problems = append(problems, "proposed_floors must be positive")
	}
	if len(problems) > 0 {
		return &intake.ValidationError{Problems: problems}
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, subject string, payload any) {
	if err := e.events.Publish(ctx, subject, payload); err != nil {
		e.logger.WarnContext(ctx, "event publish failed", "subject", subject, "error", err)
	}
}

func fillAmount(p contracts.PaymentConfirmation, fee int64) contracts.PaymentConfirmation {
	if p.Amount == 0 {
		p.Amount = fee
	}
	return p
}

// Snapshot is a point-in-time copy of one application's record.
type Snapshot struct {
	Application   contracts.ParcelApplication     `json:"application"`
	State         contracts.ApplicationState      `json:"state"`
	Fee           finance.Quote                   `json:"fee"`
	SubmittedAt   time.Time                       `json:"submitted_at"`
	Payments      []contracts.PaymentConfirmation `json:"payments,omitempty"`
	Decision      *contracts.ComplianceDecision   `json:"decision,omitempty"`
	LedgerEntry   *ledger.Entry                   `json:"ledger_entry,omitempty"`
	TransactionID string                          `json:"transaction_id,omitempty"`
	Metrics       *contracts.ChangeMetrics        `json:"metrics,omitempty"`
	Risk          *contracts.RiskAssessment       `json:"risk,omitempty"`
	FlagReason    string                          `json:"flag_reason,omitempty"`
	History       []lifecycle.Record              `json:"history"`
}

// snapshot copies rec. The record lock is released before the machine is
// queried: Evaluate takes the machine lock first.
func (e *Engine) snapshot(rec *record) Snapshot {
	e.mu.RLock()
	s := Snapshot{
		Application: rec.app,
		Fee:         rec.quote,
		SubmittedAt: rec.submittedAt,
		Payments:    append([]contracts.PaymentConfirmation(nil), rec.payments...),
	}
	if rec.decision != nil {
		d := *rec.decision
		d.Violations = append([]string(nil), d.Violations...)
		s.Decision = &d
	}
	if rec.entry != nil {
		ent := *rec.entry
		s.LedgerEntry = &ent
		s.TransactionID = ent.TransactionID()
	}
	if rec.metrics != nil {
		m := *rec.metrics
		s.Metrics = &m
		s.FlagReason = sensing.FlagReason(sensing.DeriveFlags(m))
	}
	if rec.risk != nil {
		r := *rec.risk
		s.Risk = &r
	}
	m := rec.machine
	e.mu.RUnlock()

	s.State = m.State()
	s.History = m.History()
	return s
}
