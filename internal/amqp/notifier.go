package amqp

import (
	"context"

	"fundboard/internal/log"
	"fundboard/internal/refresh"
)

// Publisher sends change messages.
type Publisher interface {
	PublishChange(ctx context.Context, msg *ChangeMessage) error
}

// Notifier is a refresh.Listener that publishes every detected change.
// Publish failures are logged; they never fail the refresh cycle.
type Notifier struct {
	pub    Publisher
	events *log.StructuredLogger
}

var _ refresh.Listener = (*Notifier)(nil)

func NewNotifier(pub Publisher, logger *log.Logger) *Notifier {
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{
		pub:    pub,
		events: log.NewStructuredLogger(logger.WithComponent(log.ComponentAMQP)),
	}
}

func (n *Notifier) OnRefresh(ctx context.Context, out refresh.Outcome) {
	if !out.Changed {
		return
	}
	msg := NewChangeMessage(out)
	if err := n.pub.PublishChange(ctx, msg); err != nil {
		n.events.LogError(ctx, "Failed to publish change message", err, log.OpPublish,
			log.LogFields{log.FieldSnapshot: msg.Snapshot})
	}
}
