package push

import (
	"context"

	"github.com/chris/questd/internal/logger"
)

// Port delivers opaque messages to a user on the chat platform. Retries are
// the platform's problem.
type Port interface {
	PushMessage(ctx context.Context, userID string, messages []string) error
}

// Dispatcher buffers the messages composed during a tick and flushes them as
// one send per user. Delivery is fire-and-forget: failures are logged and
// never roll back engine state.
type Dispatcher struct {
	port Port
	log  *logger.Logger
}

func NewDispatcher(port Port, log *logger.Logger) *Dispatcher {
	return &Dispatcher{port: port, log: log.With("component", "dispatch")}
}

// Send pushes a batch of messages to one user.
func (d *Dispatcher) Send(ctx context.Context, userID string, messages ...string) {
	if d.port == nil || len(messages) == 0 {
		return
	}
	if err := d.port.PushMessage(ctx, userID, messages); err != nil {
		d.log.Warn("push failed", "user", userID, "count", len(messages), "err", err)
	}
}

// Broadcast sends the same messages to many users.
func (d *Dispatcher) Broadcast(ctx context.Context, userIDs []string, messages ...string) {
	for _, id := range userIDs {
		d.Send(ctx, id, messages...)
	}
}
