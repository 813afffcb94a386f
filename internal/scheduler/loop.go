// Package scheduler contains the periodic ticks that drive reminder
// evaluation, notification dispatch and daily briefings.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Loop runs a tick function on a fixed interval until stopped. Each tick
// also fires once immediately on Start so a restart does not wait a full
// interval to catch up.
type Loop struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context)
	logger   *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewLoop(name string, interval time.Duration, tick func(ctx context.Context), logger *slog.Logger) *Loop {
	return &Loop{
		name:     name,
		interval: interval,
		tick:     tick,
		logger:   logger.With("component", "scheduler", "loop", name),
	}
}

// Start launches the loop goroutine. Call Stop to shut it down.
func (l *Loop) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	l.done = make(chan struct{})

	l.logger.Info("loop started", "interval", l.interval)

	go func() {
		defer close(l.done)

		l.tick(ctx)

		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				l.logger.Info("loop stopped")
				return
			case <-ticker.C:
				l.tick(ctx)
			}
		}
	}()
}

// Stop cancels the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}
