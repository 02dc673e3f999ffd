package amqp

import (
	"context"

	"hisab/internal/events"
	"hisab/internal/log"
)

// Publisher is the part of Client the bridge needs.
type Publisher interface {
	PublishEvent(ctx context.Context, msg *EventMessage) error
}

// Bridge forwards bus events to the broker so the worker process sees them.
// Publish failures are logged and dropped; the request that caused the
// event has already committed.
type Bridge struct {
	pub    Publisher
	logger *log.Logger
}

func NewBridge(pub Publisher) *Bridge {
	return &Bridge{pub: pub, logger: log.Component(log.ComponentAMQP)}
}

// Attach subscribes the bridge to every event type on bus.
func (b *Bridge) Attach(bus *events.Bus) (detach func()) {
	return bus.Subscribe(b.Forward)
}

// Forward publishes a single event.
func (b *Bridge) Forward(ctx context.Context, e events.Event) {
	msg := NewEventMessage(e)
	if err := b.pub.PublishEvent(context.WithoutCancel(ctx), msg); err != nil {
		b.logger.WarnContext(ctx, "Failed to forward event", log.FieldEvent, msg.Type, log.FieldError, err)
	}
}
