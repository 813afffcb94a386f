package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pmorrell/minder/internal/model"
	"github.com/pmorrell/minder/internal/notify"
	"github.com/pmorrell/minder/internal/policy"
	"github.com/pmorrell/minder/internal/recurrence"
	"github.com/pmorrell/minder/internal/store"
)

const defaultBriefingTime = "08:00"

// Agent composes briefing text. The push-based notification body is short;
// the agent summarizes open reminders and recent activity into it.
type Agent interface {
	Generate(ctx context.Context, userID, intent string) (string, error)
	Configured() bool
}

// BriefingTick delivers each user's daily briefing once per local day, at
// the user's configured local time.
type BriefingTick struct {
	users    *store.UserStore
	queue    *notify.Queue
	resolver *policy.Resolver
	agent    Agent
	window   time.Duration // how long after briefing time a user still counts as due
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

func NewBriefingTick(
	users *store.UserStore,
	queue *notify.Queue,
	resolver *policy.Resolver,
	agent Agent,
	window time.Duration,
	logger *slog.Logger,
) *BriefingTick {
	return &BriefingTick{
		users:    users,
		queue:    queue,
		resolver: resolver,
		agent:    agent,
		window:   window,
		logger:   logger.With("component", "briefing_tick"),
		now:      time.Now,
	}
}

// BriefingStats summarizes one briefing pass.
type BriefingStats struct {
	Candidates int
	Queued     int
	Suppressed int
	Errors     int
}

// Run is the Loop adapter around RunOnce.
func (t *BriefingTick) Run(ctx context.Context) {
	stats := t.RunOnce(ctx)
	if stats.Queued > 0 || stats.Errors > 0 {
		t.logger.Info("briefing pass",
			"candidates", stats.Candidates,
			"queued", stats.Queued,
			"suppressed", stats.Suppressed,
			"errors", stats.Errors,
		)
	}
}

// RunOnce walks users with briefings enabled and queues a briefing for each
// whose local clock is inside [briefing_time, briefing_time+window) and who
// has not been briefed today. The dedup record is written before the agent
// call so a slow agent cannot double-brief across ticks; the agent call and
// enqueue run in a goroutine per user.
func (t *BriefingTick) RunOnce(ctx context.Context) BriefingStats {
	var stats BriefingStats

	candidates, err := t.users.BriefingCandidates()
	if err != nil {
		t.logger.Error("query briefing candidates", "error", err)
		stats.Errors++
		return stats
	}
	stats.Candidates = len(candidates)

	now := t.now()
	for _, prefs := range candidates {
		local := now.In(userLocation(prefs.Timezone))
		if !t.due(prefs, local) {
			continue
		}

		localDate := local.Format("2006-01-02")
		briefed, err := t.users.WasBriefed(prefs.UserID, localDate)
		if err != nil {
			t.logger.Error("check briefing log", "user_id", prefs.UserID, "error", err)
			stats.Errors++
			continue
		}
		if briefed {
			continue
		}

		channel, deliver := t.resolver.Resolve(prefs, now)
		if !deliver {
			// The user scheduled their briefing inside their own quiet
			// hours; record it so we do not retry all day.
			if err := t.users.RecordBriefing(prefs.UserID, localDate); err != nil {
				t.logger.Error("record briefing", "user_id", prefs.UserID, "error", err)
				stats.Errors++
				continue
			}
			stats.Suppressed++
			continue
		}

		if err := t.users.RecordBriefing(prefs.UserID, localDate); err != nil {
			t.logger.Error("record briefing", "user_id", prefs.UserID, "error", err)
			stats.Errors++
			continue
		}

		stats.Queued++
		userID := prefs.UserID
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.compose(ctx, userID, channel, local)
		}()
	}

	return stats
}

// Wait blocks until in-flight briefing compositions finish. Shutdown and
// tests call this.
func (t *BriefingTick) Wait() {
	t.wg.Wait()
}

func (t *BriefingTick) due(prefs model.Preferences, local time.Time) bool {
	timeStr := prefs.BriefingTime
	if timeStr == "" {
		timeStr = defaultBriefingTime
	}
	target, err := recurrence.ParseTimeOfDay(timeStr)
	if err != nil {
		return false
	}

	minute := local.Hour()*60 + local.Minute()
	targetMin := target.Hour*60 + target.Minute
	windowMin := int(t.window / time.Minute)
	if windowMin < 1 {
		windowMin = 1
	}
	return minute >= targetMin && minute < targetMin+windowMin
}

// compose asks the agent for briefing text and queues the notification. A
// missing or failing agent degrades to a fixed body rather than skipping
// the briefing.
func (t *BriefingTick) compose(ctx context.Context, userID, channel string, local time.Time) {
	body := "Your daily briefing is ready. Open Minder to review today's reminders."
	if t.agent != nil && t.agent.Configured() {
		text, err := t.agent.Generate(ctx, userID, "daily_briefing")
		if err != nil {
			t.logger.Warn("agent briefing failed, using fallback body",
				"user_id", userID, "error", err)
		} else {
			body = text
		}
	}

	title := fmt.Sprintf("Daily Briefing for %s", local.Format("Monday, Jan 2"))
	if _, err := t.queue.Enqueue(ctx, &model.Notification{
		UserID:           userID,
		NotificationType: model.NotifTypeBriefing,
		Title:            title,
		Body:             body,
		Channel:          channel,
	}); err != nil {
		t.logger.Error("enqueue briefing", "user_id", userID, "error", err)
	}
}

func userLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
