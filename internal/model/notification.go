package model

import "time"

// Delivery channels.
const (
	ChannelEmail   = "email"
	ChannelDiscord = "discord"
	ChannelPush    = "push"
)

// Notification statuses. A notification moves pending -> sent or
// pending -> failed exactly once; it is never deleted.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification types.
const (
	NotifTypeReminder = "reminder"
	NotifTypeBriefing = "briefing"
)

type Notification struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	ReminderID       *string    `json:"reminder_id"`
	NotificationType string     `json:"notification_type"`
	Title            string     `json:"title"`
	Body             string     `json:"body"`
	Channel          string     `json:"channel"`
	Status           string     `json:"status"`
	SentAt           *time.Time `json:"sent_at"`
	DeliveryInfo     string     `json:"delivery_info"`
	ClaimedAt        *time.Time `json:"claimed_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}
