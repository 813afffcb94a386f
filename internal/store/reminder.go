package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pmorrell/minder/internal/model"
)

type ReminderStore struct {
	db *sql.DB
}

func NewReminderStore(db *sql.DB) *ReminderStore {
	return &ReminderStore{db: db}
}

const reminderColumns = `id, user_id, title, description, trigger_type, trigger_config,
	 priority, status, next_trigger_at, last_triggered_at, snooze_until,
	 related_entity_id, related_fact_id, created_at, updated_at`

// Create inserts a reminder. The CRUD surface owns creation; the store
// method exists for it and for tests. A zero ID is assigned.
func (s *ReminderStore) Create(r *model.Reminder) (*model.Reminder, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = model.ReminderActive
	}
	var next, snooze any
	if r.NextTriggerAt != nil {
		next = r.NextTriggerAt.UTC()
	}
	if r.SnoozeUntil != nil {
		snooze = r.SnoozeUntil.UTC()
	}
	_, err := s.db.Exec(
		`INSERT INTO reminders (id, user_id, title, description, trigger_type, trigger_config,
		 priority, status, next_trigger_at, snooze_until, related_entity_id, related_fact_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Title, r.Description, r.TriggerType, r.TriggerConfig,
		r.Priority, r.Status, next, snooze, r.RelatedEntityID, r.RelatedFactID,
	)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	return s.GetByID(r.ID)
}

func (s *ReminderStore) GetByID(id string) (*model.Reminder, error) {
	row := s.db.QueryRow(
		`SELECT `+reminderColumns+` FROM reminders WHERE id = ?`, id,
	)
	r, err := scanReminder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	return r, nil
}

// Due returns reminders eligible to fire at now: active, trigger time
// passed, snooze lapsed. Ordering is priority descending, then trigger time
// ascending, with id as the final key so two reads of the same snapshot
// agree.
func (s *ReminderStore) Due(now time.Time, limit int) ([]model.Reminder, error) {
	rows, err := s.db.Query(
		`SELECT `+reminderColumns+`
		 FROM reminders
		 WHERE status = 'active'
		 AND next_trigger_at IS NOT NULL
		 AND next_trigger_at <= ?
		 AND (snooze_until IS NULL OR snooze_until <= ?)
		 ORDER BY priority DESC, next_trigger_at ASC, id ASC
		 LIMIT ?`,
		now.UTC(), now.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due reminder: %w", err)
		}
		reminders = append(reminders, *r)
	}
	return reminders, rows.Err()
}

// Reschedule records a firing of a recurring reminder. next may be nil when
// the trigger config no longer yields a future occurrence; the reminder
// then stays active but drops out of the due set until corrected.
func (s *ReminderStore) Reschedule(id string, firedAt time.Time, next *time.Time) error {
	var nextVal any
	if next != nil {
		nextVal = next.UTC()
	}
	_, err := s.db.Exec(
		`UPDATE reminders
		 SET last_triggered_at = ?, next_trigger_at = ?, updated_at = ?
		 WHERE id = ?`,
		firedAt.UTC(), nextVal, firedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("reschedule reminder: %w", err)
	}
	return nil
}

// MarkTriggered retires a one-shot reminder after it fires.
func (s *ReminderStore) MarkTriggered(id string, firedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE reminders
		 SET status = ?, last_triggered_at = ?, updated_at = ?
		 WHERE id = ?`,
		model.ReminderTriggered, firedAt.UTC(), firedAt.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark reminder triggered: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReminder(row rowScanner) (*model.Reminder, error) {
	var r model.Reminder
	err := row.Scan(
		&r.ID, &r.UserID, &r.Title, &r.Description, &r.TriggerType, &r.TriggerConfig,
		&r.Priority, &r.Status, &r.NextTriggerAt, &r.LastTriggeredAt, &r.SnoozeUntil,
		&r.RelatedEntityID, &r.RelatedFactID, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
