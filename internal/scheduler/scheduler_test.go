package scheduler

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/pmorrell/minder/internal/database"
	"github.com/pmorrell/minder/internal/handoff"
	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/notify"
	"github.com/pmorrell/minder/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	db            *sql.DB
	reminders     *store.ReminderStore
	notifications *store.NotificationStore
	users         *store.UserStore
	bus           *handoff.MemoryBus
	queue         *notify.Queue
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		db:            db,
		reminders:     store.NewReminderStore(db),
		notifications: store.NewNotificationStore(db),
		users:         store.NewUserStore(db),
		bus:           handoff.NewMemoryBus(64),
	}
	f.queue = notify.NewQueue(f.notifications, f.bus, testLogger())
	return f
}

func (f *fixture) createUser(t *testing.T, email string) string {
	t.Helper()
	contact, err := f.users.CreateUser(&model.Contact{Email: email, DiscordUserID: ""})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return contact.UserID
}

func (f *fixture) setPrefs(t *testing.T, p model.Preferences) {
	t.Helper()
	if err := f.users.SetPreferences(p); err != nil {
		t.Fatalf("set preferences: %v", err)
	}
}

func (f *fixture) createReminder(t *testing.T, r *model.Reminder) *model.Reminder {
	t.Helper()
	created, err := f.reminders.Create(r)
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	return created
}

// notificationsFor returns (type, channel, status, body) rows for a user.
func (f *fixture) notificationsFor(t *testing.T, userID string) []model.Notification {
	t.Helper()
	rows, err := f.db.Query(
		`SELECT id, notification_type, channel, status, body, delivery_info
		 FROM notifications WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		t.Fatalf("query notifications: %v", err)
	}
	defer rows.Close()

	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.NotificationType, &n.Channel, &n.Status, &n.Body, &n.DeliveryInfo); err != nil {
			t.Fatalf("scan notification: %v", err)
		}
		out = append(out, n)
	}
	return out
}

// fakeDispatcher records sends and returns a fixed result.
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []fakeSend
	info  string
	err   error
}

type fakeSend struct {
	contact model.Contact
	title   string
	body    string
}

func (d *fakeDispatcher) Send(_ context.Context, contact model.Contact, title, body string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fakeSend{contact: contact, title: title, body: body})
	if d.err != nil {
		return "", d.err
	}
	return d.info, nil
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// recordingBroadcaster captures live events.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroadcaster) Broadcast(event string, _ *model.Notification) {
	b.mu.Lock()
	b.events = append(b.events, event)
	b.mu.Unlock()
}

// fakeAgent returns fixed briefing text.
type fakeAgent struct {
	text       string
	err        error
	configured bool
}

func (a *fakeAgent) Generate(_ context.Context, _, _ string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return a.text, nil
}

func (a *fakeAgent) Configured() bool { return a.configured }
