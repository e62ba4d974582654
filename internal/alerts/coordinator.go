package alerts

import (
	"context"
	"log/slog"
	"time"
)

// Coordinator invokes the runner on a fixed interval. A deployment driven by
// external cron can skip the coordinator and call Run directly instead.
type Coordinator struct {
	runner   *Runner
	interval time.Duration
}

// NewCoordinator creates a coordinator running the given runner every
// interval.
func NewCoordinator(runner *Runner, interval time.Duration) *Coordinator {
	return &Coordinator{runner: runner, interval: interval}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled. The first
// pass runs immediately so alerts due during downtime are not delayed a full
// interval.
func (c *Coordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "alert-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.runner.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "alert-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.runner.Run(ctx)
		}
	}
}
