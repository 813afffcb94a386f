// Package policy decides whether and where a notification may be delivered
// for a user at a given instant.
package policy

import (
	"time"

	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/recurrence"
)

// Resolver applies per-user delivery preferences. pushAvailable reflects
// whether a push sender is configured at all; an unconfigured push channel
// is rejected at selection time rather than producing unsendable
// notifications.
type Resolver struct {
	pushAvailable bool
}

func NewResolver(pushAvailable bool) *Resolver {
	return &Resolver{pushAvailable: pushAvailable}
}

// Resolve returns the delivery channel for the user, or ok=false when the
// instant falls inside the user's quiet hours. Quiet-hours suppression
// skips the delivery outright; it does not defer it.
func (r *Resolver) Resolve(prefs model.Preferences, now time.Time) (string, bool) {
	if InQuietHours(prefs, now) {
		return "", false
	}
	return r.preferred(prefs), true
}

// preferred picks the first enabled channel in priority order: discord for
// rich interaction, push for immediacy, email as the fallback.
func (r *Resolver) preferred(prefs model.Preferences) string {
	switch {
	case prefs.DiscordEnabled:
		return model.ChannelDiscord
	case prefs.PushEnabled && r.pushAvailable:
		return model.ChannelPush
	case prefs.EmailEnabled:
		return model.ChannelEmail
	case r.pushAvailable:
		return model.ChannelPush
	default:
		return model.ChannelEmail
	}
}

// InQuietHours reports whether now falls inside the user's quiet-hours
// window [start, end), evaluated on the user's local clock. start > end is
// an overnight window (e.g. 22:00-07:00).
func InQuietHours(prefs model.Preferences, now time.Time) bool {
	if !prefs.QuietHoursEnabled {
		return false
	}

	start, err := recurrence.ParseTimeOfDay(prefs.QuietHoursStart)
	if err != nil {
		return false
	}
	end, err := recurrence.ParseTimeOfDay(prefs.QuietHoursEnd)
	if err != nil {
		return false
	}

	local := now.In(userLocation(prefs.Timezone))
	minute := local.Hour()*60 + local.Minute()
	startMin := start.Hour*60 + start.Minute
	endMin := end.Hour*60 + end.Minute

	if startMin <= endMin {
		return minute >= startMin && minute < endMin
	}
	// Overnight window.
	return minute >= startMin || minute < endMin
}

func userLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
