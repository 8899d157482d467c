package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nsqio/go-nsq"

	"github.com/nmiculinic/rzne/internal/domain"
)

type producer interface {
	Publish(topic string, body []byte) error
	Stop()
}

// NSQPublisher publishes note events to an nsqd topic.
type NSQPublisher struct {
	producer producer
	topic    string
}

// NewNSQPublisher connects to nsqd at addr and verifies it with a ping.
func NewNSQPublisher(addr, topic string, logger *slog.Logger) (*NSQPublisher, error) {
	p, err := nsq.NewProducer(addr, nsq.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("create nsq producer: %w", err)
	}
	p.SetLogger(nsqLogger{log: logger}, nsq.LogLevelWarning)
	if err := p.Ping(); err != nil {
		p.Stop()
		return nil, fmt.Errorf("ping nsqd %s: %w", addr, err)
	}
	return &NSQPublisher{producer: p, topic: topic}, nil
}

// Publish sends the JSON event to the configured topic.
func (p *NSQPublisher) Publish(_ context.Context, event domain.NoteEvent) error {
	payload, err := Marshal(event)
	if err != nil {
		return err
	}
	if err := p.producer.Publish(p.topic, payload); err != nil {
		return fmt.Errorf("nsq publish: %w", err)
	}
	return nil
}

// Close stops the producer.
func (p *NSQPublisher) Close() {
	p.producer.Stop()
}

// nsqLogger routes go-nsq's line logger into slog.
type nsqLogger struct {
	log *slog.Logger
}

func (l nsqLogger) Output(_ int, s string) error {
	l.log.Warn("nsq", "message", strings.TrimSpace(s))
	return nil
}
