package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/policy"
)

func newEvaluateTick(f *fixture, pushAvailable bool, now time.Time) *EvaluateTick {
	tick := NewEvaluateTick(f.reminders, f.users, f.queue, policy.NewResolver(pushAvailable), 100, testLogger())
	tick.now = func() time.Time { return now }
	return tick
}

func TestEvaluateOneShotFires(t *testing.T) {
	f := setup(t)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	userID := f.createUser(t, "u@example.com")
	f.setPrefs(t, model.Preferences{UserID: userID, EmailEnabled: true, Timezone: "UTC"})

	due := now.Add(-time.Minute)
	r := f.createReminder(t, &model.Reminder{
		UserID:        userID,
		Title:         "water the plants",
		Description:   "the ficus looks thirsty",
		TriggerType:   model.TriggerTime,
		TriggerConfig: `{"at": "` + due.Format(time.RFC3339) + `"}`,
		NextTriggerAt: &due,
	})

	stats := newEvaluateTick(f, false, now).RunOnce(context.Background())
	if stats.Queued != 1 || stats.Errors != 0 {
		t.Fatalf("stats = %+v, want 1 queued", stats)
	}

	// One pending email notification with the description as body.
	ns := f.notificationsFor(t, userID)
	if len(ns) != 1 {
		t.Fatalf("got %d notifications, want 1", len(ns))
	}
	if ns[0].Channel != model.ChannelEmail || ns[0].Status != model.NotificationPending {
		t.Errorf("notification = %+v", ns[0])
	}
	if ns[0].Body != "the ficus looks thirsty" {
		t.Errorf("body = %q", ns[0].Body)
	}

	// The hand-off message is on the bus.
	msgs, _ := f.bus.Pull(context.Background(), 10)
	if len(msgs) != 1 || msgs[0].NotificationID != ns[0].ID {
		t.Errorf("bus messages = %v", msgs)
	}

	// The one-shot reminder is retired.
	got, _ := f.reminders.GetByID(r.ID)
	if got.Status != model.ReminderTriggered {
		t.Errorf("reminder status = %q, want triggered", got.Status)
	}
	if got.LastTriggeredAt == nil {
		t.Error("last_triggered_at should be set")
	}
}

func TestEvaluateRecurringReschedules(t *testing.T) {
	f := setup(t)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	userID := f.createUser(t, "u@example.com")
	f.setPrefs(t, model.Preferences{UserID: userID, EmailEnabled: true, Timezone: "UTC"})

	due := now.Add(-time.Minute)
	r := f.createReminder(t, &model.Reminder{
		UserID:        userID,
		Title:         "morning stretch",
		TriggerType:   model.TriggerRecurring,
		TriggerConfig: `{"time": "09:00"}`,
		NextTriggerAt: &due,
	})

	stats := newEvaluateTick(f, false, now).RunOnce(context.Background())
	if stats.Queued != 1 {
		t.Fatalf("stats = %+v, want 1 queued", stats)
	}

	got, _ := f.reminders.GetByID(r.ID)
	if got.Status != model.ReminderActive {
		t.Errorf("reminder status = %q, want active", got.Status)
	}
	// 12:00 is past 09:00, so the next occurrence is tomorrow morning.
	want := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	if got.NextTriggerAt == nil || !got.NextTriggerAt.Equal(want) {
		t.Errorf("next_trigger_at = %v, want %v", got.NextTriggerAt, want)
	}
}

func TestEvaluateQuietHoursSuppressesButAdvances(t *testing.T) {
	f := setup(t)
	now := time.Date(2026, time.April, 1, 23, 30, 0, 0, time.UTC)
	userID := f.createUser(t, "u@example.com")
	f.setPrefs(t, model.Preferences{
		UserID:            userID,
		EmailEnabled:      true,
		QuietHoursEnabled: true,
		QuietHoursStart:   "22:00",
		QuietHoursEnd:     "07:00",
		Timezone:          "UTC",
	})

	due := now.Add(-time.Minute)
	r := f.createReminder(t, &model.Reminder{
		UserID:        userID,
		Title:         "late reminder",
		TriggerType:   model.TriggerTime,
		TriggerConfig: `{"at": "` + due.Format(time.RFC3339) + `"}`,
		NextTriggerAt: &due,
	})

	stats := newEvaluateTick(f, false, now).RunOnce(context.Background())
	if stats.Suppressed != 1 || stats.Queued != 0 {
		t.Fatalf("stats = %+v, want 1 suppressed", stats)
	}

	// No notification, but the occurrence is consumed.
	if ns := f.notificationsFor(t, userID); len(ns) != 0 {
		t.Errorf("got %d notifications, want 0", len(ns))
	}
	got, _ := f.reminders.GetByID(r.ID)
	if got.Status != model.ReminderTriggered {
		t.Errorf("reminder status = %q, want triggered", got.Status)
	}
}

func TestEvaluateDefaultPreferences(t *testing.T) {
	f := setup(t)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	userID := f.createUser(t, "u@example.com")
	// No preference row: defaults are push+email, so without a push sender
	// the channel falls back to email.

	due := now.Add(-time.Minute)
	f.createReminder(t, &model.Reminder{
		UserID:        userID,
		Title:         "t",
		TriggerType:   model.TriggerTime,
		TriggerConfig: `{"at": "` + due.Format(time.RFC3339) + `"}`,
		NextTriggerAt: &due,
	})

	stats := newEvaluateTick(f, false, now).RunOnce(context.Background())
	if stats.Queued != 1 {
		t.Fatalf("stats = %+v, want 1 queued", stats)
	}
	ns := f.notificationsFor(t, userID)
	if len(ns) != 1 || ns[0].Channel != model.ChannelEmail {
		t.Errorf("notifications = %+v, want one email", ns)
	}
}

func TestEvaluateDefaultPreferencesPushAvailable(t *testing.T) {
	f := setup(t)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	userID := f.createUser(t, "u@example.com")

	due := now.Add(-time.Minute)
	f.createReminder(t, &model.Reminder{
		UserID:        userID,
		Title:         "t",
		TriggerType:   model.TriggerTime,
		TriggerConfig: `{"at": "` + due.Format(time.RFC3339) + `"}`,
		NextTriggerAt: &due,
	})

	newEvaluateTick(f, true, now).RunOnce(context.Background())
	ns := f.notificationsFor(t, userID)
	if len(ns) != 1 || ns[0].Channel != model.ChannelPush {
		t.Errorf("notifications = %+v, want one push", ns)
	}
}

func TestEvaluateRecurringWithBadRuleUnschedules(t *testing.T) {
	f := setup(t)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	userID := f.createUser(t, "u@example.com")
	f.setPrefs(t, model.Preferences{UserID: userID, EmailEnabled: true, Timezone: "UTC"})

	due := now.Add(-time.Minute)
	r := f.createReminder(t, &model.Reminder{
		UserID:        userID,
		Title:         "broken recurrence",
		TriggerType:   model.TriggerRecurring,
		TriggerConfig: `{"rrule": "FREQ=NEVER"}`,
		NextTriggerAt: &due,
	})

	stats := newEvaluateTick(f, false, now).RunOnce(context.Background())
	// The firing itself still delivers; only the advance degrades.
	if stats.Queued != 1 {
		t.Fatalf("stats = %+v, want 1 queued", stats)
	}

	got, _ := f.reminders.GetByID(r.ID)
	if got.Status != model.ReminderActive {
		t.Errorf("reminder status = %q, want active", got.Status)
	}
	if got.NextTriggerAt != nil {
		t.Errorf("next_trigger_at = %v, want nil", got.NextTriggerAt)
	}

	// Unscheduled means it does not fire again.
	stats = newEvaluateTick(f, false, now.Add(time.Hour)).RunOnce(context.Background())
	if stats.Evaluated != 0 {
		t.Errorf("second pass evaluated %d, want 0", stats.Evaluated)
	}
}

func TestEvaluateRerunProducesNoDuplicates(t *testing.T) {
	f := setup(t)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	userID := f.createUser(t, "u@example.com")
	f.setPrefs(t, model.Preferences{UserID: userID, EmailEnabled: true, Timezone: "UTC"})

	due := now.Add(-time.Minute)
	r := f.createReminder(t, &model.Reminder{
		UserID:        userID,
		Title:         "once only",
		TriggerType:   model.TriggerTime,
		TriggerConfig: `{"at": "` + due.Format(time.RFC3339) + `"}`,
		NextTriggerAt: &due,
	})

	tick := newEvaluateTick(f, false, now)
	tick.RunOnce(context.Background())
	tick.RunOnce(context.Background())

	count, err := f.notifications.CountByReminder(r.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("notification count = %d, want 1", count)
	}
}

func TestEvaluateBatchLimit(t *testing.T) {
	f := setup(t)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	userID := f.createUser(t, "u@example.com")
	f.setPrefs(t, model.Preferences{UserID: userID, EmailEnabled: true, Timezone: "UTC"})

	due := now.Add(-time.Minute)
	for i := 0; i < 5; i++ {
		f.createReminder(t, &model.Reminder{
			UserID:        userID,
			Title:         "r",
			TriggerType:   model.TriggerTime,
			TriggerConfig: `{"at": "` + due.Format(time.RFC3339) + `"}`,
			NextTriggerAt: &due,
		})
	}

	tick := NewEvaluateTick(f.reminders, f.users, f.queue, policy.NewResolver(false), 3, testLogger())
	tick.now = func() time.Time { return now }

	stats := tick.RunOnce(context.Background())
	if stats.Evaluated != 3 {
		t.Errorf("evaluated = %d, want batch limit 3", stats.Evaluated)
	}

	// The remainder is picked up by the next pass.
	stats = tick.RunOnce(context.Background())
	if stats.Evaluated != 2 {
		t.Errorf("second pass evaluated = %d, want 2", stats.Evaluated)
	}
}
