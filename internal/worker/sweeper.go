package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sympabridge/internal/models"
)

// BatchRunner is implemented by moderation.Processor.
type BatchRunner interface {
	ProcessDue(ctx context.Context) (*models.ModerationSummary, error)
}

// StartSweeper runs the moderation sweep on a fixed interval until the
// context is cancelled. It replaces an external cron for deployments
// that do not have one; it never overlaps its own runs because each
// tick is handled inline on the single goroutine.
func StartSweeper(
	ctx context.Context,
	wg *sync.WaitGroup,
	interval time.Duration,
	runner BatchRunner,
	logger *zap.Logger,
) {

	wg.Add(1)

	go func() {
		defer wg.Done()

		logger.Info("moderation sweeper started", zap.Duration("interval", interval))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {

			case <-ctx.Done():
				logger.Info("moderation sweeper shutting down")
				return

			case <-ticker.C:
				summary, err := runner.ProcessDue(ctx)
				if err != nil {
					logger.Error("scheduled moderation sweep failed", zap.Error(err))
					continue
				}

				logger.Info("scheduled moderation sweep complete",
					zap.Int("processed", summary.Processed),
					zap.Int("sent", summary.Sent),
					zap.Int("failed", summary.Failed),
				)
			}
		}
	}()
}
