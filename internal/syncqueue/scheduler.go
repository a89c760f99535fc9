package syncqueue

import (
	"context"
	"time"

	"github.com/bassista/go_offline/internal/logger"
)

// Drainer is the queue API the scheduler needs.
type Drainer interface {
	DrainAll(ctx context.Context)
}

// StartDrainScheduler runs a goroutine that periodically drains every
// configured tag, and additionally drains immediately on connectivity
// restoration. On ctx.Done it performs a final best-effort drain before
// returning. The returned channel is closed once shutdown completes.
func StartDrainScheduler(
	ctx context.Context,
	queue Drainer,
	reconnect <-chan struct{},
	interval time.Duration,
) <-chan struct{} {
	done := make(chan struct{})
	logger.WithComponent("sync").Debugf("starting drain scheduler with interval: %v", interval)
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.WithComponent("sync").Debug("drain scheduler received context cancellation, performing final drain")
				// Final drain on shutdown - use a background context so it completes
				queue.DrainAll(context.Background())
				logger.WithComponent("sync").Info("drain scheduler stopped after final drain")
				return
			case <-reconnect:
				logger.WithComponent("sync").Info("connectivity restored, draining all tags")
				queue.DrainAll(ctx)
			case <-ticker.C:
				logger.WithComponent("sync").Tracef("drain scheduler tick")
				queue.DrainAll(ctx)
			}
		}
	}()
	return done
}
