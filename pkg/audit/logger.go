// Package audit records who did what to an application and packages the
// ledger into exportable evidence.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Varshaa-Selva/Languard-ai/pkg/auth"
)

// EventType is the category of an audit event.
type EventType string

const (
	EventSubmission EventType = "SUBMISSION"
	EventPayment    EventType = "PAYMENT"
	EventDecision   EventType = "DECISION"
	EventAssessment EventType = "ASSESSMENT"
	EventIntegrity  EventType = "INTEGRITY"
	EventExport     EventType = "EXPORT"
)

// linePrefix marks audit lines in mixed log output.
const linePrefix = "AUDIT: "

// Event is a structured audit record.
type Event struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger records audit events.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error
}

type logger struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewLogger writes to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter writes one prefixed JSON line per event to w.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &logger{writer: w, clock: time.Now}
}

func (l *logger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	event := Event{
		ID:        uuid.New().String(),
		ActorID:   actorID(ctx),
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Timestamp: l.clock().UTC(),
		Metadata:  metadata,
	}

	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.writer.Write(append(append([]byte(linePrefix), line...), '\n'))
	return err
}

// actorID falls back to "system" for background work such as scheduled
// verification, where no request context exists.
func actorID(ctx context.Context) string {
	if _, err := auth.GetPrincipal(ctx); err != nil && ctx.Value(systemKey{}) != nil {
		return "system"
	}
	return auth.ActorID(ctx)
}

type systemKey struct{}

// AsSystem marks ctx as originating from a background job.
func AsSystem(ctx context.Context) context.Context {
	return context.WithValue(ctx, systemKey{}, true)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, EventType, string, string, map[string]any) error { return nil }
