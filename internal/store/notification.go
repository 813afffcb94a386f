package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pmorrell/minder/internal/model"
)

type NotificationStore struct {
	db *sql.DB
}

func NewNotificationStore(db *sql.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

const notificationColumns = `id, user_id, reminder_id, notification_type, title, body,
	 channel, status, sent_at, delivery_info, claimed_at, created_at, updated_at`

// Create inserts a pending notification and returns the stored row.
func (s *NotificationStore) Create(n *model.Notification) (*model.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = model.NotificationPending
	}
	_, err := s.db.Exec(
		`INSERT INTO notifications (id, user_id, reminder_id, notification_type, title, body, channel, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.UserID, n.ReminderID, n.NotificationType, n.Title, n.Body, n.Channel, n.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	return s.GetByID(n.ID)
}

func (s *NotificationStore) GetByID(id string) (*model.Notification, error) {
	var n model.Notification
	err := s.db.QueryRow(
		`SELECT `+notificationColumns+` FROM notifications WHERE id = ?`, id,
	).Scan(
		&n.ID, &n.UserID, &n.ReminderID, &n.NotificationType, &n.Title, &n.Body,
		&n.Channel, &n.Status, &n.SentAt, &n.DeliveryInfo, &n.ClaimedAt, &n.CreatedAt, &n.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return &n, nil
}

// Claim stamps a pending notification as owned by this dispatch pass. The
// conditional update is what makes duplicate hand-off deliveries safe: only
// one consumer wins the row, and a finalized notification can never be
// claimed again. A claim older than staleBefore is treated as abandoned and
// may be taken over.
func (s *NotificationStore) Claim(id string, now, staleBefore time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE notifications
		 SET claimed_at = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'
		 AND (claimed_at IS NULL OR claimed_at <= ?)`,
		now.UTC(), now.UTC(), id, staleBefore.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("claim notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim notification rows: %w", err)
	}
	return affected == 1, nil
}

// Finalize moves a pending notification to sent or failed, exactly once.
// Returns false when the row was already finalized by another consumer.
func (s *NotificationStore) Finalize(id, status, deliveryInfo string, now time.Time) (bool, error) {
	if status != model.NotificationSent && status != model.NotificationFailed {
		return false, fmt.Errorf("invalid terminal status: %q", status)
	}
	var sentAt any
	if status == model.NotificationSent {
		sentAt = now.UTC()
	}
	result, err := s.db.Exec(
		`UPDATE notifications
		 SET status = ?, sent_at = ?, delivery_info = ?, updated_at = ?
		 WHERE id = ? AND status = 'pending'`,
		status, sentAt, deliveryInfo, now.UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("finalize notification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finalize notification rows: %w", err)
	}
	return affected == 1, nil
}

// PendingOlderThan returns ids of pending notifications created before
// cutoff whose claim is absent or stale. The recovery sweep uses this to
// re-drive rows whose hand-off message was lost.
func (s *NotificationStore) PendingOlderThan(cutoff, staleBefore time.Time, limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT id FROM notifications
		 WHERE status = 'pending'
		 AND created_at <= ?
		 AND (claimed_at IS NULL OR claimed_at <= ?)
		 ORDER BY created_at ASC
		 LIMIT ?`,
		cutoff.UTC(), staleBefore.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending notifications: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending notification id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountByReminder returns how many notifications a reminder has produced.
func (s *NotificationStore) CountByReminder(reminderID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM notifications WHERE reminder_id = ?`, reminderID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count notifications by reminder: %w", err)
	}
	return count, nil
}
