package store

import (
	"testing"
	"time"

	"github.com/pmorrell/minder/internal/model"
)

func newPendingNotification(t *testing.T, notifications *NotificationStore, userID string) *model.Notification {
	t.Helper()
	n, err := notifications.Create(&model.Notification{
		UserID:           userID,
		NotificationType: model.NotifTypeReminder,
		Title:            "water the plants",
		Body:             "the ficus looks thirsty",
		Channel:          model.ChannelEmail,
	})
	if err != nil {
		t.Fatalf("create notification: %v", err)
	}
	return n
}

func TestNotificationCreateDefaults(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)
	notifications := NewNotificationStore(db)

	n := newPendingNotification(t, notifications, user.UserID)
	if n.ID == "" {
		t.Error("expected assigned id")
	}
	if n.Status != model.NotificationPending {
		t.Errorf("status = %q, want pending", n.Status)
	}
	if n.SentAt != nil {
		t.Errorf("sent_at = %v, want nil", n.SentAt)
	}
	if n.ClaimedAt != nil {
		t.Errorf("claimed_at = %v, want nil", n.ClaimedAt)
	}
}

func TestClaimOnce(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)
	notifications := NewNotificationStore(db)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	staleBefore := now.Add(-5 * time.Minute)

	n := newPendingNotification(t, notifications, user.UserID)

	claimed, err := notifications.Claim(n.ID, now, staleBefore)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should win")
	}

	// A second consumer with the same stale horizon loses.
	claimed, err = notifications.Claim(n.ID, now.Add(time.Second), staleBefore)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed {
		t.Error("fresh claim should not be taken over")
	}
}

func TestClaimTakesOverStaleClaim(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)
	notifications := NewNotificationStore(db)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

	n := newPendingNotification(t, notifications, user.UserID)

	if _, err := notifications.Claim(n.ID, now.Add(-10*time.Minute), now.Add(-15*time.Minute)); err != nil {
		t.Fatalf("claim: %v", err)
	}

	// The original claim is 10 minutes old, past the 5 minute horizon.
	claimed, err := notifications.Claim(n.ID, now, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Error("stale claim should be taken over")
	}
}

func TestFinalizeExactlyOnce(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)
	notifications := NewNotificationStore(db)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

	n := newPendingNotification(t, notifications, user.UserID)

	ok, err := notifications.Finalize(n.ID, model.NotificationSent, "msg-123", now)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !ok {
		t.Fatal("first finalize should succeed")
	}

	got, err := notifications.GetByID(n.ID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if got.Status != model.NotificationSent {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.DeliveryInfo != "msg-123" {
		t.Errorf("delivery_info = %q, want msg-123", got.DeliveryInfo)
	}
	if got.SentAt == nil {
		t.Error("sent_at should be set")
	}

	// A terminal row cannot be finalized again.
	ok, err = notifications.Finalize(n.ID, model.NotificationFailed, "late failure", now)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if ok {
		t.Error("second finalize should be a no-op")
	}

	got, _ = notifications.GetByID(n.ID)
	if got.Status != model.NotificationSent {
		t.Errorf("status flipped to %q after duplicate finalize", got.Status)
	}
}

func TestFinalizeFailedKeepsSentAtNull(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)
	notifications := NewNotificationStore(db)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

	n := newPendingNotification(t, notifications, user.UserID)

	ok, err := notifications.Finalize(n.ID, model.NotificationFailed, "no email address on file", now)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if !ok {
		t.Fatal("finalize should succeed")
	}

	got, err := notifications.GetByID(n.ID)
	if err != nil {
		t.Fatalf("get notification: %v", err)
	}
	if got.Status != model.NotificationFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.SentAt != nil {
		t.Errorf("sent_at = %v, want nil for failures", got.SentAt)
	}
	if got.DeliveryInfo != "no email address on file" {
		t.Errorf("delivery_info = %q", got.DeliveryInfo)
	}
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)
	notifications := NewNotificationStore(db)

	n := newPendingNotification(t, notifications, user.UserID)

	if _, err := notifications.Finalize(n.ID, model.NotificationPending, "", time.Now()); err == nil {
		t.Error("expected error for non-terminal status")
	}
}

func TestPendingOlderThan(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)
	notifications := NewNotificationStore(db)
	now := time.Now().UTC()

	stale := newPendingNotification(t, notifications, user.UserID)
	finalized := newPendingNotification(t, notifications, user.UserID)
	if _, err := notifications.Finalize(finalized.ID, model.NotificationSent, "msg", now); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	ids, err := notifications.PendingOlderThan(now.Add(time.Second), now.Add(time.Second), 100)
	if err != nil {
		t.Fatalf("pending older than: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Errorf("got %v, want [%s]", ids, stale.ID)
	}

	// Nothing qualifies against a cutoff in the past.
	ids, err = notifications.PendingOlderThan(now.Add(-time.Hour), now.Add(-time.Hour), 100)
	if err != nil {
		t.Fatalf("pending older than: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("got %v, want empty", ids)
	}
}

func TestCountByReminder(t *testing.T) {
	db := openTestDB(t)
	user := createTestUser(t, db)
	notifications := NewNotificationStore(db)
	now := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)

	r := createTestReminder(t, db, user.UserID, now, 2)

	for i := 0; i < 2; i++ {
		if _, err := notifications.Create(&model.Notification{
			UserID:           user.UserID,
			ReminderID:       &r.ID,
			NotificationType: model.NotifTypeReminder,
			Title:            r.Title,
			Channel:          model.ChannelEmail,
		}); err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}

	count, err := notifications.CountByReminder(r.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}
