package coordinator

import (
	"context"
	"log/slog"
	"time"
)

// Reaper periodically removes sessions that have been idle too long
type Reaper struct {
	manager  *SessionManager
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// NewReaper creates a reaper that sweeps every interval and evicts sessions
// idle for longer than timeout
func NewReaper(manager *SessionManager, interval, timeout time.Duration, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		manager:  manager,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run sweeps until ctx is done
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass and returns the number of evicted sessions
func (r *Reaper) Sweep(ctx context.Context) int {
	removed := r.manager.CleanupStale(ctx, r.timeout)
	if removed > 0 {
		r.logger.Info("cleaned up stale sessions",
			"count", removed,
			"remaining", r.manager.SessionCount(ctx))
	}
	return removed
}
