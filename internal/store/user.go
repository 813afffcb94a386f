package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pmorrell/minder/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// CreateUser inserts a user with their contact addresses. Signup lives in
// the CRUD surface; this exists for it and for tests.
func (s *UserStore) CreateUser(c *model.Contact) (*model.Contact, error) {
	if c.UserID == "" {
		c.UserID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, discord_user_id, push_subscription)
		 VALUES (?, ?, ?, ?)`,
		c.UserID, c.Email, c.DiscordUserID, c.PushSubscription,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return c, nil
}

// GetContact returns the user's per-channel addresses, or nil when the user
// does not exist.
func (s *UserStore) GetContact(userID string) (*model.Contact, error) {
	var c model.Contact
	err := s.db.QueryRow(
		`SELECT id, email, discord_user_id, push_subscription FROM users WHERE id = ?`,
		userID,
	).Scan(&c.UserID, &c.Email, &c.DiscordUserID, &c.PushSubscription)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user contact: %w", err)
	}
	return &c, nil
}

// GetPreferences returns the user's delivery preferences, or nil when no
// record exists. Callers fall back to model.DefaultPreferences.
func (s *UserStore) GetPreferences(userID string) (*model.Preferences, error) {
	var p model.Preferences
	var push, email, discord, quiet, briefing int
	err := s.db.QueryRow(
		`SELECT user_id, push_enabled, email_enabled, discord_enabled,
		 quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone,
		 briefing_enabled, briefing_time
		 FROM user_notification_preferences WHERE user_id = ?`,
		userID,
	).Scan(
		&p.UserID, &push, &email, &discord,
		&quiet, &p.QuietHoursStart, &p.QuietHoursEnd, &p.Timezone,
		&briefing, &p.BriefingTime,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	p.PushEnabled = push != 0
	p.EmailEnabled = email != 0
	p.DiscordEnabled = discord != 0
	p.QuietHoursEnabled = quiet != 0
	p.BriefingEnabled = briefing != 0
	return &p, nil
}

// SetPreferences upserts the user's delivery preferences.
func (s *UserStore) SetPreferences(p model.Preferences) error {
	_, err := s.db.Exec(
		`INSERT INTO user_notification_preferences
		 (user_id, push_enabled, email_enabled, discord_enabled,
		  quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone,
		  briefing_enabled, briefing_time)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		  push_enabled = excluded.push_enabled,
		  email_enabled = excluded.email_enabled,
		  discord_enabled = excluded.discord_enabled,
		  quiet_hours_enabled = excluded.quiet_hours_enabled,
		  quiet_hours_start = excluded.quiet_hours_start,
		  quiet_hours_end = excluded.quiet_hours_end,
		  timezone = excluded.timezone,
		  briefing_enabled = excluded.briefing_enabled,
		  briefing_time = excluded.briefing_time,
		  updated_at = CURRENT_TIMESTAMP`,
		p.UserID, boolInt(p.PushEnabled), boolInt(p.EmailEnabled), boolInt(p.DiscordEnabled),
		boolInt(p.QuietHoursEnabled), p.QuietHoursStart, p.QuietHoursEnd, p.Timezone,
		boolInt(p.BriefingEnabled), p.BriefingTime,
	)
	if err != nil {
		return fmt.Errorf("set preferences: %w", err)
	}
	return nil
}

// BriefingCandidates returns preferences of all users with briefings
// enabled. The briefing tick narrows them by local time.
func (s *UserStore) BriefingCandidates() ([]model.Preferences, error) {
	rows, err := s.db.Query(
		`SELECT user_id, push_enabled, email_enabled, discord_enabled,
		 quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone,
		 briefing_enabled, briefing_time
		 FROM user_notification_preferences WHERE briefing_enabled = 1`,
	)
	if err != nil {
		return nil, fmt.Errorf("query briefing candidates: %w", err)
	}
	defer rows.Close()

	var prefs []model.Preferences
	for rows.Next() {
		var p model.Preferences
		var push, email, discord, quiet, briefing int
		if err := rows.Scan(
			&p.UserID, &push, &email, &discord,
			&quiet, &p.QuietHoursStart, &p.QuietHoursEnd, &p.Timezone,
			&briefing, &p.BriefingTime,
		); err != nil {
			return nil, fmt.Errorf("scan briefing candidate: %w", err)
		}
		p.PushEnabled = push != 0
		p.EmailEnabled = email != 0
		p.DiscordEnabled = discord != 0
		p.QuietHoursEnabled = quiet != 0
		p.BriefingEnabled = briefing != 0
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

// WasBriefed checks the once-per-local-day briefing dedup record.
func (s *UserStore) WasBriefed(userID, localDate string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM briefing_log WHERE user_id = ? AND briefing_date = ?`,
		userID, localDate,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check briefing log: %w", err)
	}
	return count > 0, nil
}

// RecordBriefing marks the user as briefed for the local date.
func (s *UserStore) RecordBriefing(userID, localDate string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO briefing_log (user_id, briefing_date) VALUES (?, ?)`,
		userID, localDate,
	)
	if err != nil {
		return fmt.Errorf("record briefing: %w", err)
	}
	return nil
}

// CleanupBriefings deletes briefing dedup records older than the given time.
func (s *UserStore) CleanupBriefings(before time.Time) error {
	_, err := s.db.Exec(`DELETE FROM briefing_log WHERE created_at < ?`, before.UTC())
	if err != nil {
		return fmt.Errorf("cleanup briefing log: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
