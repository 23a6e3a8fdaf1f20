package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazardwatch/apiserver/types"
)

const (
	attrEventType = "event_type"
	attrCategory  = "category"
)

// ErrMalformedEvent marks a message that can never be decoded.
var ErrMalformedEvent = errors.New("malformed complaint event")

// EventBus publishes and consumes complaint events on one channel.
type EventBus struct {
	backend Backend
	channel string
}

func NewEventBus(backend Backend, channel string) *EventBus {
	return &EventBus{backend: backend, channel: channel}
}

// Publish encodes event as JSON and sends it with routing attributes.
func (b *EventBus) Publish(ctx context.Context, event types.ComplaintEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode complaint event: %w", err)
	}
	_, err = b.backend.Publish(ctx, b.channel, data, map[string]string{
		attrEventType: string(event.Type),
		attrCategory:  string(event.Category),
	})
	return err
}

// Consume delivers decoded events to handle until ctx ends. Malformed
// messages are logged and acknowledged so they are not redelivered.
func (b *EventBus) Consume(ctx context.Context, logger *slog.Logger, handle func(context.Context, types.ComplaintEvent) error) error {
	return b.backend.Subscribe(ctx, b.channel, func(ctx context.Context, msg Message) error {
		event, err := DecodeEvent(msg)
		if err != nil {
			logger.Warn("dropping complaint event", "message_id", msg.ID, "error", err)
			return nil
		}
		return handle(ctx, event)
	})
}

func (b *EventBus) Close() error {
	return b.backend.Close()
}

// DecodeEvent parses a complaint event from a broker message.
func DecodeEvent(msg Message) (types.ComplaintEvent, error) {
	var event types.ComplaintEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return types.ComplaintEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch event.Type {
	case types.ComplaintCreated, types.ComplaintStatusChanged, types.ComplaintUpdated:
	default:
		return types.ComplaintEvent{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, event.Type)
	}
	if !event.Category.Valid() {
		return types.ComplaintEvent{}, fmt.Errorf("%w: unknown category %q", ErrMalformedEvent, event.Category)
	}
	return event, nil
}
