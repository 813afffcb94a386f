package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/pmorrell/minder/internal/database"
	"github.com/pmorrell/minder/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB) *model.Contact {
	t.Helper()
	users := NewUserStore(db)
	contact, err := users.CreateUser(&model.Contact{
		Email:         "test@example.com",
		DiscordUserID: "123456789",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return contact
}

func createTestReminder(t *testing.T, db *sql.DB, userID string, next time.Time, priority int) *model.Reminder {
	t.Helper()
	reminders := NewReminderStore(db)
	r, err := reminders.Create(&model.Reminder{
		UserID:        userID,
		Title:         "water the plants",
		TriggerType:   model.TriggerTime,
		TriggerConfig: `{"at": "` + next.Format(time.RFC3339) + `"}`,
		Priority:      priority,
		NextTriggerAt: &next,
	})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	return r
}
