package mq

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hazardwatch/apiserver/types"
)

// loopbackBackend delivers published messages to the subscriber in order.
type loopbackBackend struct {
	messages []Message
	acked    []string
	nacked   []string
}

func (l *loopbackBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id := uuid.NewString()
	l.messages = append(l.messages, Message{ID: id, Data: data, Attributes: attrs})
	return id, nil
}

func (l *loopbackBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	for _, msg := range l.messages {
		if err := handler(ctx, msg); err != nil {
			l.nacked = append(l.nacked, msg.ID)
			continue
		}
		l.acked = append(l.acked, msg.ID)
	}
	return nil
}

func (l *loopbackBackend) Close() error { return nil }

func TestEventBus_PublishAndConsume(t *testing.T) {
	backend := &loopbackBackend{}
	bus := NewEventBus(backend, "complaint-events")

	event := types.ComplaintEvent{
		Type:        types.ComplaintStatusChanged,
		ComplaintID: uuid.New(),
		Category:    types.CategoryWaste,
		Status:      types.StatusResolved,
		PrevStatus:  types.StatusPending,
		ActorID:     uuid.New(),
		OccurredAt:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := bus.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := backend.messages[0].Attributes[attrEventType]; got != string(types.ComplaintStatusChanged) {
		t.Fatalf("unexpected event type attribute %q", got)
	}
	if got := backend.messages[0].Attributes[attrCategory]; got != "waste" {
		t.Fatalf("unexpected category attribute %q", got)
	}

	var received []types.ComplaintEvent
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := bus.Consume(context.Background(), logger, func(ctx context.Context, e types.ComplaintEvent) error {
		received = append(received, e)
		return nil
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected one event, got %d", len(received))
	}
	if received[0].ComplaintID != event.ComplaintID || received[0].PrevStatus != types.StatusPending {
		t.Fatalf("event mangled in transit: %+v", received[0])
	}
}

func TestEventBus_MalformedMessagesAreAcked(t *testing.T) {
	backend := &loopbackBackend{messages: []Message{
		{ID: "garbage", Data: []byte("{not json")},
		{ID: "unknown-type", Data: []byte(`{"type":"complaint.deleted","category":"roads"}`)},
		{ID: "bad-category", Data: []byte(`{"type":"complaint.created","category":"parks"}`)},
	}}
	bus := NewEventBus(backend, "complaint-events")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	called := false
	if err := bus.Consume(context.Background(), logger, func(ctx context.Context, e types.ComplaintEvent) error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if called {
		t.Fatal("handler must not see malformed events")
	}
	if len(backend.acked) != 3 || len(backend.nacked) != 0 {
		t.Fatalf("expected all malformed messages acked, got acked=%v nacked=%v", backend.acked, backend.nacked)
	}
}

func TestEventBus_HandlerErrorNacks(t *testing.T) {
	backend := &loopbackBackend{}
	bus := NewEventBus(backend, "complaint-events")
	_ = bus.Publish(context.Background(), types.ComplaintEvent{Type: types.ComplaintCreated, Category: types.CategoryRoads})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_ = bus.Consume(context.Background(), logger, func(ctx context.Context, e types.ComplaintEvent) error {
		return errors.New("downstream unavailable")
	})
	if len(backend.nacked) != 1 {
		t.Fatalf("expected handler failure to nack, got %v", backend.nacked)
	}
}

func TestDecodeEvent(t *testing.T) {
	_, err := DecodeEvent(Message{Data: []byte(`{"type":"complaint.created","category":"electricity"}`)})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	_, err = DecodeEvent(Message{Data: []byte(`[]`)})
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}
