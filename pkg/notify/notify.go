// Package notify delivers fire-and-forget side effects of order and
// assignment transitions: customer emails and realtime status events.
// Failures here are logged and never propagated; the primary operation has
// already committed by the time a notification goes out.
package notify

import (
	"context"
	"time"

	"food-dispatch/internal/models"
)

// StatusEvent is published whenever an order changes status.
type StatusEvent struct {
	OrderID    string             `json:"order_id"`
	OldStatus  models.OrderStatus `json:"old_status,omitempty"`
	NewStatus  models.OrderStatus `json:"new_status"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// Notifier is the contract the handoff and order services use to fan out
// status changes.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, customerEmail string, event StatusEvent)
}

// Multi fans one notification out to several sinks.
type Multi []Notifier

func (m Multi) NotifyStatusChange(ctx context.Context, customerEmail string, event StatusEvent) {
	for _, n := range m {
		n.NotifyStatusChange(ctx, customerEmail, event)
	}
}

// Noop discards notifications. Used in tests and when no sink is configured.
type Noop struct{}

func (Noop) NotifyStatusChange(context.Context, string, StatusEvent) {}
