package snapshot

import (
	"context"
	"log/slog"
	"time"
)

// Snapshotter produces a consistent point-in-time copy of the database and
// returns the path of the file it wrote.
type Snapshotter interface {
	Snapshot(ctx context.Context, dir string) (string, error)
}

// Coordinator periodically snapshots the database and uploads the result.
type Coordinator struct {
	store    Snapshotter
	uploader Uploader
	dir      string
	interval time.Duration
}

// NewCoordinator creates a snapshot coordinator writing into dir.
func NewCoordinator(store Snapshotter, uploader Uploader, dir string, interval time.Duration) *Coordinator {
	return &Coordinator{
		store:    store,
		uploader: uploader,
		dir:      dir,
		interval: interval,
	}
}

// Run starts the coordinator loop. Blocks until ctx is cancelled. Takes a
// snapshot immediately on start so a fresh deployment has one from minute
// zero.
func (c *Coordinator) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "worker",
		"worker", "snapshot-coordinator",
		"interval", c.interval.String(),
	)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.snapshot(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "snapshot-coordinator",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			c.snapshot(ctx)
		}
	}
}

// snapshot runs one snapshot cycle. Upload failures are warnings; the local
// snapshot remains valid without them.
func (c *Coordinator) snapshot(ctx context.Context) {
	start := time.Now()

	path, err := c.store.Snapshot(ctx, c.dir)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("snapshot generation failed",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"error", err,
		)
		return
	}

	if err := c.uploader.Upload(ctx, path); err != nil {
		slog.Warn("snapshot upload failed",
			"component", "worker",
			"worker", "snapshot-coordinator",
			"path", path,
			"error", err,
		)
	}

	slog.Info("snapshot cycle completed",
		"component", "worker",
		"worker", "snapshot-coordinator",
		"path", path,
		"duration", time.Since(start).String(),
	)
}
