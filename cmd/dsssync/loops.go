package main

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-dss/internal/dss"
	"github.com/nerrad567/gray-logic-dss/internal/snapshot"
)

type rebuilder interface {
	UpdateAll(ctx context.Context) ([]dss.Zone, error)
}

type statePublisher interface {
	PublishStates(ctx context.Context, source string)
}

type pruner interface {
	Prune(ctx context.Context, olderThan time.Duration) (int64, error)
}

type loopLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// resyncLoop rebuilds the structure every interval and republishes every
// group status. A failed rebuild keeps the previous cache and is retried
// on the next tick. It returns nil when ctx ends; interval <= 0 disables it.
func resyncLoop(ctx context.Context, apt rebuilder, states statePublisher, interval time.Duration, log loopLogger) error {
	if interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			zones, err := apt.UpdateAll(ctx)
			if err != nil {
				log.Warn("periodic resync failed", "error", err)
				continue
			}
			states.PublishStates(ctx, snapshot.SourceResync)
			log.Info("periodic resync complete", "zones", len(zones))
		}
	}
}

// pruneLoop deletes history older than retention once at start and then
// every interval.
func pruneLoop(ctx context.Context, history pruner, retention, interval time.Duration, log loopLogger) error {
	prune := func() {
		n, err := history.Prune(ctx, retention)
		if err != nil {
			log.Warn("pruning status history failed", "error", err)
			return
		}
		if n > 0 {
			log.Info("status history pruned", "removed", n)
		}
	}

	prune()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}
