// Package events publishes decision and risk notifications to subscribers
// outside the engine.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects published by the engine.
const (
	SubjectDecisionRecorded = "landguard.decision.recorded"
	SubjectRiskAssessed     = "landguard.risk.assessed"
)

// Envelope wraps every published payload.
type Envelope struct {
	ID         string          `json:"id"`
	Subject    string          `json:"subject"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Publisher delivers events. Publishing is best effort: the engine logs
// failures and never rolls back a committed decision because of them.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Seal builds the envelope for payload.
func Seal(subject string, payload any, at time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("events: marshal %s: %w", subject, err)
	}
	return Envelope{ID: uuid.New().String(), Subject: subject, OccurredAt: at.UTC(), Payload: raw}, nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }

// conn is the part of *nats.Conn used here.
type conn interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes envelopes on a NATS connection.
type NATSPublisher struct {
	nc     conn
	close  func()
	logger *slog.Logger
}

// DialNATS connects to url and returns a publisher owning the connection.
func DialNATS(url string) (*NATSPublisher, error) {
	logger := slog.Default().With("component", "events")
	nc, err := nats.Connect(url,
		nats.Name("landguard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("events: connect %s: %w", url, err)
	}
	return &NATSPublisher{
		nc:     nc,
		close:  func() { _ = nc.Drain() },
		logger: logger,
	}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := Seal(subject, payload, time.Now())
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("events: publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", "subject", subject, "event_id", env.ID)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.close != nil {
		p.close()
	}
}
