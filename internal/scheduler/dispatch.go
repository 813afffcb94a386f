package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/pmorrell/minder/internal/handoff"
	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/notify"
	"github.com/pmorrell/minder/internal/store"
)

// Broadcaster pushes delivery outcomes to connected live-feed clients.
type Broadcaster interface {
	Broadcast(event string, n *model.Notification)
}

// DispatchTick drains the hand-off bus, claims each pending notification,
// sends it over its channel and finalizes the row. A recovery sweep folds
// in pending rows old enough that their hand-off message must have been
// lost.
type DispatchTick struct {
	notifications *store.NotificationStore
	users         *store.UserStore
	bus           handoff.Bus
	dispatchers   notify.Registry
	broadcaster   Broadcaster // optional
	batchLimit    int
	sendTimeout   time.Duration
	recoveryAge   time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

func NewDispatchTick(
	notifications *store.NotificationStore,
	users *store.UserStore,
	bus handoff.Bus,
	dispatchers notify.Registry,
	broadcaster Broadcaster,
	batchLimit int,
	sendTimeout, recoveryAge time.Duration,
	logger *slog.Logger,
) *DispatchTick {
	return &DispatchTick{
		notifications: notifications,
		users:         users,
		bus:           bus,
		dispatchers:   dispatchers,
		broadcaster:   broadcaster,
		batchLimit:    batchLimit,
		sendTimeout:   sendTimeout,
		recoveryAge:   recoveryAge,
		logger:        logger.With("component", "dispatch_tick"),
		now:           time.Now,
	}
}

// DispatchStats summarizes one dispatch pass.
type DispatchStats struct {
	Pulled    int
	Recovered int
	Sent      int
	Failed    int
	Skipped   int
	Errors    int
}

// Run is the Loop adapter around RunOnce.
func (t *DispatchTick) Run(ctx context.Context) {
	stats := t.RunOnce(ctx)
	if stats.Pulled > 0 || stats.Recovered > 0 || stats.Errors > 0 {
		t.logger.Info("dispatch pass",
			"pulled", stats.Pulled,
			"recovered", stats.Recovered,
			"sent", stats.Sent,
			"failed", stats.Failed,
			"skipped", stats.Skipped,
			"errors", stats.Errors,
		)
	}
}

// RunOnce delivers one batch. The bus feed and the recovery sweep are
// merged; the per-row claim makes it safe to see the same notification
// twice.
func (t *DispatchTick) RunOnce(ctx context.Context) DispatchStats {
	var stats DispatchStats

	seen := make(map[string]bool)
	var ids []string

	msgs, err := t.bus.Pull(ctx, t.batchLimit)
	if err != nil {
		t.logger.Error("pull handoff messages", "error", err)
		stats.Errors++
	}
	for _, msg := range msgs {
		if !seen[msg.NotificationID] {
			seen[msg.NotificationID] = true
			ids = append(ids, msg.NotificationID)
		}
	}
	stats.Pulled = len(ids)

	cutoff := t.now().Add(-t.recoveryAge)
	stale, err := t.notifications.PendingOlderThan(cutoff, cutoff, t.batchLimit)
	if err != nil {
		t.logger.Error("recovery sweep", "error", err)
		stats.Errors++
	}
	for _, id := range stale {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
			stats.Recovered++
		}
	}

	for _, id := range ids {
		t.deliver(ctx, id, &stats)
	}

	return stats
}

func (t *DispatchTick) deliver(ctx context.Context, id string, stats *DispatchStats) {
	now := t.now().UTC()

	claimed, err := t.notifications.Claim(id, now, now.Add(-t.recoveryAge))
	if err != nil {
		t.logger.Error("claim notification", "notification_id", id, "error", err)
		stats.Errors++
		return
	}
	if !claimed {
		// Already finalized or freshly claimed elsewhere.
		stats.Skipped++
		return
	}

	n, err := t.notifications.GetByID(id)
	if err != nil {
		t.logger.Error("load notification", "notification_id", id, "error", err)
		stats.Errors++
		return
	}
	if n == nil || n.Status != model.NotificationPending {
		stats.Skipped++
		return
	}

	contact, err := t.users.GetContact(n.UserID)
	if err != nil {
		t.logger.Error("load contact", "notification_id", id, "error", err)
		stats.Errors++
		return
	}
	if contact == nil {
		t.finalize(n, model.NotificationFailed, "user not found", now, stats)
		return
	}

	dispatcher, err := t.dispatchers.For(n.Channel)
	if err != nil {
		t.finalize(n, model.NotificationFailed, err.Error(), now, stats)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, t.sendTimeout)
	info, err := dispatcher.Send(sendCtx, *contact, n.Title, n.Body)
	cancel()

	if err != nil {
		t.logger.Warn("delivery failed",
			"notification_id", n.ID, "channel", n.Channel, "error", err)
		t.finalize(n, model.NotificationFailed, err.Error(), t.now().UTC(), stats)
		return
	}
	t.finalize(n, model.NotificationSent, info, t.now().UTC(), stats)
}

func (t *DispatchTick) finalize(n *model.Notification, status, info string, now time.Time, stats *DispatchStats) {
	ok, err := t.notifications.Finalize(n.ID, status, info, now)
	if err != nil {
		t.logger.Error("finalize notification", "notification_id", n.ID, "error", err)
		stats.Errors++
		return
	}
	if !ok {
		stats.Skipped++
		return
	}

	n.Status = status
	n.DeliveryInfo = info
	if status == model.NotificationSent {
		stats.Sent++
		sent := now
		n.SentAt = &sent
	} else {
		stats.Failed++
	}

	if t.broadcaster != nil {
		event := "notification_sent"
		if status == model.NotificationFailed {
			event = "notification_failed"
		}
		t.broadcaster.Broadcast(event, n)
	}
}
