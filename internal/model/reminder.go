package model

import "time"

// Trigger types determine how a reminder's trigger_config is interpreted.
const (
	TriggerTime      = "time"
	TriggerRecurring = "recurring"
	TriggerEvent     = "event"
	TriggerLocation  = "location"
)

// Reminder statuses. Cancelled, completed and triggered are terminal:
// the scheduler never picks them up again.
const (
	ReminderActive    = "active"
	ReminderPaused    = "paused"
	ReminderCancelled = "cancelled"
	ReminderCompleted = "completed"
	ReminderTriggered = "triggered"
)

type Reminder struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	TriggerType     string     `json:"trigger_type"`
	TriggerConfig   string     `json:"trigger_config"` // JSON document
	Priority        int        `json:"priority"`
	Status          string     `json:"status"`
	NextTriggerAt   *time.Time `json:"next_trigger_at"`
	LastTriggeredAt *time.Time `json:"last_triggered_at"`
	SnoozeUntil     *time.Time `json:"snooze_until"`
	RelatedEntityID *string    `json:"related_entity_id"`
	RelatedFactID   *string    `json:"related_fact_id"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Recurring reports whether the reminder reschedules itself after firing.
func (r *Reminder) Recurring() bool {
	return r.TriggerType == TriggerRecurring
}

// Body returns the notification body text for a firing: the description
// when present, otherwise the title.
func (r *Reminder) Body() string {
	if r.Description != "" {
		return r.Description
	}
	return r.Title
}
