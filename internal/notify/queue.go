package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pmorrell/minder/internal/handoff"
	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/store"
)

// Queue persists notifications and announces them on the hand-off bus.
// The row insert is the durable step; the bus publish is best-effort and a
// lost announcement is recovered by the dispatch sweep.
type Queue struct {
	notifications *store.NotificationStore
	bus           handoff.Bus
	logger        *slog.Logger
}

func NewQueue(notifications *store.NotificationStore, bus handoff.Bus, logger *slog.Logger) *Queue {
	return &Queue{
		notifications: notifications,
		bus:           bus,
		logger:        logger.With("component", "notify_queue"),
	}
}

// Enqueue inserts a pending notification and publishes its id on the bus.
// A store failure is returned so the caller can leave the reminder
// unadvanced; a publish failure is only logged.
func (q *Queue) Enqueue(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	created, err := q.notifications.Create(n)
	if err != nil {
		return nil, fmt.Errorf("enqueue notification: %w", err)
	}

	if err := q.bus.Publish(ctx, handoff.Message{
		NotificationID: created.ID,
		Type:           created.NotificationType,
		Title:          created.Title,
	}); err != nil {
		q.logger.Warn("handoff publish failed, recovery sweep will pick it up",
			"notification_id", created.ID, "error", err)
	}

	return created, nil
}
