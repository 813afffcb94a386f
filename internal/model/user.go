package model

// Preferences holds a user's delivery preferences. The scheduler treats
// them as read-only; a missing row falls back to DefaultPreferences.
type Preferences struct {
	UserID            string `json:"user_id"`
	PushEnabled       bool   `json:"push_enabled"`
	EmailEnabled      bool   `json:"email_enabled"`
	DiscordEnabled    bool   `json:"discord_enabled"`
	QuietHoursEnabled bool   `json:"quiet_hours_enabled"`
	QuietHoursStart   string `json:"quiet_hours_start"` // "HH:MM", empty = unset
	QuietHoursEnd     string `json:"quiet_hours_end"`
	Timezone          string `json:"timezone"`
	BriefingEnabled   bool   `json:"briefing_enabled"`
	BriefingTime      string `json:"briefing_time"` // "HH:MM" local
}

// DefaultPreferences is the safe fallback when a user has no preference
// record: push and email on, no quiet hours.
func DefaultPreferences(userID string) Preferences {
	return Preferences{
		UserID:       userID,
		PushEnabled:  true,
		EmailEnabled: true,
		Timezone:     "America/New_York",
	}
}

// Contact holds the per-channel delivery addresses for a user. Empty
// fields mean the channel has nowhere to deliver to.
type Contact struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	DiscordUserID    string `json:"discord_user_id"`
	PushSubscription string `json:"push_subscription"` // web push subscription JSON
}
