// Package trigger maps a reminder's trigger specification and the current
// instant to the next fire time, if any.
package trigger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/recurrence"
)

// config is the union of fields the trigger types read out of
// trigger_config. Several aliases for the one-shot instant are accepted for
// compatibility with older clients.
type config struct {
	At          string `json:"at"`
	ScheduledAt string `json:"scheduledAt"`
	TriggerAt   string `json:"triggerAt"`
	Time        string `json:"time"`       // "HH:MM" for recurring
	RRule       string `json:"rrule"`      // optional recurrence rule
	CheckAfter  string `json:"checkAfter"` // polling lower bound for event triggers
}

// NextFire computes the next fire instant for a trigger.
//
//   - time: the single absolute instant in the config; one-shot.
//   - recurring: the next occurrence strictly after now (daily time-of-day,
//     optionally shaped by an RRULE); evaluated on the UTC clock.
//   - event: the optional checkAfter lower bound; the event condition itself
//     is evaluated externally at delivery time.
//   - location: never time-driven.
//
// Malformed configs return an error rather than a panic; the caller logs
// and leaves the reminder for manual correction.
func NextFire(triggerType, triggerConfig string, now time.Time) (time.Time, bool, error) {
	var cfg config
	if triggerConfig != "" {
		if err := json.Unmarshal([]byte(triggerConfig), &cfg); err != nil {
			return time.Time{}, false, fmt.Errorf("parse trigger config: %w", err)
		}
	}

	switch triggerType {
	case model.TriggerTime:
		raw := cfg.At
		if raw == "" {
			raw = cfg.ScheduledAt
		}
		if raw == "" {
			raw = cfg.TriggerAt
		}
		if raw == "" {
			return time.Time{}, false, fmt.Errorf("time trigger has no instant")
		}
		at, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse trigger instant %q: %w", raw, err)
		}
		return at.UTC(), true, nil

	case model.TriggerRecurring:
		timeStr := cfg.Time
		if timeStr == "" {
			timeStr = "09:00"
		}
		at, err := recurrence.ParseTimeOfDay(timeStr)
		if err != nil {
			return time.Time{}, false, err
		}

		rule := recurrence.DailyRule()
		if cfg.RRule != "" {
			rule, err = recurrence.Parse(cfg.RRule)
			if err != nil {
				return time.Time{}, false, fmt.Errorf("parse rrule: %w", err)
			}
		}

		next, ok := recurrence.NextAfter(rule, at, now.UTC())
		if !ok {
			return time.Time{}, false, fmt.Errorf("rule %q has no future occurrence", rule)
		}
		return next, true, nil

	case model.TriggerEvent:
		if cfg.CheckAfter == "" {
			return time.Time{}, false, nil
		}
		at, err := time.Parse(time.RFC3339, cfg.CheckAfter)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse checkAfter %q: %w", cfg.CheckAfter, err)
		}
		return at.UTC(), true, nil

	case model.TriggerLocation:
		// Geofence evaluation lives outside the time-based tick.
		return time.Time{}, false, nil

	default:
		return time.Time{}, false, fmt.Errorf("unknown trigger type: %q", triggerType)
	}
}
