// Package events forwards committed ledger events to external subscribers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/contracts"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/emission"
	"github.com/MarComplianceBlockchain/SystemPrototype/pkg/notice"
)

// Topics.
const (
	TopicEmissionRecorded = "emission.recorded"
	TopicNoticeFiled      = "notice.filed"
)

// Envelope is the wire form of a published event.
type Envelope struct {
	Topic     string          `json:"topic"`
	EmittedAt time.Time       `json:"emitted_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher delivers events to some sink.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
	Close() error
}

func encode(topic string, payload any, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s payload: %w", topic, err)
	}
	return json.Marshal(Envelope{Topic: topic, EmittedAt: now.UTC(), Payload: raw})
}

// LogPublisher writes events to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "events")}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, payload any) error {
	p.logger.InfoContext(ctx, "event", "topic", topic, "payload", payload)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, topic string, payload any) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// EmissionSubscriber adapts p to the emission ledger's subscriber hook.
func EmissionSubscriber(p Publisher) emission.Subscriber {
	return func(ctx context.Context, ev contracts.EmissionRecorded) error {
		return p.Publish(ctx, TopicEmissionRecorded, ev)
	}
}

// NoticeHandler adapts p to the notice log's handler hook. The log has
// already committed, so failures are only logged.
func NoticeHandler(p Publisher) notice.Handler {
	logger := slog.Default().With("component", "events")
	return func(ctx context.Context, n contracts.ComplianceNotice) {
		if err := p.Publish(ctx, TopicNoticeFiled, n); err != nil {
			logger.WarnContext(ctx, "notice event not delivered", "notice_id", n.ID, "error", err)
		}
	}
}
