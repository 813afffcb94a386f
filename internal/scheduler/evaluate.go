package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/notify"
	"github.com/pmorrell/minder/internal/policy"
	"github.com/pmorrell/minder/internal/store"
	"github.com/pmorrell/minder/internal/trigger"
)

// EvaluateTick finds due reminders, queues a notification for each, and
// advances the reminder so it does not fire again for the same occurrence.
type EvaluateTick struct {
	reminders  *store.ReminderStore
	users      *store.UserStore
	queue      *notify.Queue
	resolver   *policy.Resolver
	batchLimit int
	logger     *slog.Logger
	now        func() time.Time
}

func NewEvaluateTick(
	reminders *store.ReminderStore,
	users *store.UserStore,
	queue *notify.Queue,
	resolver *policy.Resolver,
	batchLimit int,
	logger *slog.Logger,
) *EvaluateTick {
	return &EvaluateTick{
		reminders:  reminders,
		users:      users,
		queue:      queue,
		resolver:   resolver,
		batchLimit: batchLimit,
		logger:     logger.With("component", "evaluate_tick"),
		now:        time.Now,
	}
}

// EvaluateStats summarizes one evaluation pass.
type EvaluateStats struct {
	Evaluated  int
	Queued     int
	Suppressed int
	Errors     int
}

// Run is the Loop adapter around RunOnce.
func (t *EvaluateTick) Run(ctx context.Context) {
	stats := t.RunOnce(ctx)
	if stats.Evaluated > 0 || stats.Errors > 0 {
		t.logger.Info("evaluation pass",
			"evaluated", stats.Evaluated,
			"queued", stats.Queued,
			"suppressed", stats.Suppressed,
			"errors", stats.Errors,
		)
	}
}

// RunOnce processes one batch of due reminders. For each reminder: resolve
// the delivery channel, queue the notification unless quiet hours suppress
// it, then advance the reminder. A queueing failure leaves the reminder
// unadvanced so the next pass retries it; quiet-hours suppression still
// advances it, because suppression skips the occurrence rather than
// deferring it.
func (t *EvaluateTick) RunOnce(ctx context.Context) EvaluateStats {
	var stats EvaluateStats

	now := t.now().UTC()
	due, err := t.reminders.Due(now, t.batchLimit)
	if err != nil {
		t.logger.Error("query due reminders", "error", err)
		stats.Errors++
		return stats
	}

	for i := range due {
		r := &due[i]
		stats.Evaluated++

		prefs, err := t.users.GetPreferences(r.UserID)
		if err != nil {
			t.logger.Error("load preferences", "reminder_id", r.ID, "error", err)
			stats.Errors++
			continue
		}
		if prefs == nil {
			p := model.DefaultPreferences(r.UserID)
			prefs = &p
		}

		channel, deliver := t.resolver.Resolve(*prefs, now)
		if deliver {
			_, err := t.queue.Enqueue(ctx, &model.Notification{
				UserID:           r.UserID,
				ReminderID:       &r.ID,
				NotificationType: model.NotifTypeReminder,
				Title:            r.Title,
				Body:             r.Body(),
				Channel:          channel,
			})
			if err != nil {
				// Leave the reminder due; the next pass retries it.
				t.logger.Error("enqueue notification", "reminder_id", r.ID, "error", err)
				stats.Errors++
				continue
			}
			stats.Queued++
		} else {
			t.logger.Debug("delivery suppressed by quiet hours", "reminder_id", r.ID)
			stats.Suppressed++
		}

		if err := t.advance(r, now); err != nil {
			t.logger.Error("advance reminder", "reminder_id", r.ID, "error", err)
			stats.Errors++
		}
	}

	return stats
}

// advance moves the reminder past this firing: recurring reminders get
// their next occurrence, everything else retires as triggered. A recurring
// reminder whose config no longer yields an occurrence stays active with a
// null trigger time, which drops it out of the due set until corrected.
func (t *EvaluateTick) advance(r *model.Reminder, firedAt time.Time) error {
	if !r.Recurring() {
		return t.reminders.MarkTriggered(r.ID, firedAt)
	}

	next, ok, err := trigger.NextFire(r.TriggerType, r.TriggerConfig, firedAt)
	if err != nil || !ok {
		if err != nil {
			t.logger.Warn("no next occurrence for recurring reminder",
				"reminder_id", r.ID, "error", err)
		}
		return t.reminders.Reschedule(r.ID, firedAt, nil)
	}
	return t.reminders.Reschedule(r.ID, firedAt, &next)
}
