// Package events delivers note activity to in-process subscribers and external brokers.
package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nmiculinic/rzne/internal/domain"
	"github.com/nmiculinic/rzne/internal/ws"
)

// Publisher delivers committed note events.
type Publisher interface {
	Publish(ctx context.Context, event domain.NoteEvent) error
}

// Marshal encodes an event for the wire.
func Marshal(event domain.NoteEvent) ([]byte, error) {
	return json.Marshal(event)
}

// HubPublisher broadcasts events to websocket and SSE subscribers of the owner topic.
type HubPublisher struct {
	hub *ws.Hub
}

// NewHubPublisher wraps hub.
func NewHubPublisher(hub *ws.Hub) HubPublisher {
	return HubPublisher{hub: hub}
}

// Publish broadcasts the event under event.Owner.
func (p HubPublisher) Publish(_ context.Context, event domain.NoteEvent) error {
	payload, err := Marshal(event)
	if err != nil {
		return err
	}
	p.hub.Broadcast(event.Owner, payload)
	return nil
}

// Hub exposes the hub for stream handlers.
func (p HubPublisher) Hub() *ws.Hub {
	return p.hub
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

// Publish delivers to all publishers, continuing past failures.
func (m Multi) Publish(ctx context.Context, event domain.NoteEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
