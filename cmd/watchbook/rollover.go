package main

import (
	"context"
	"time"

	"watchbook/internal/log"
	"watchbook/internal/services"
)

// runRollover installs the default expenses whenever a new month starts
// while the process is running. Failures are logged and retried on the
// next tick.
func runRollover(ctx context.Context, r *services.Rollover, interval time.Duration, logger *log.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("Month rollover configured", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				logger.Error("Month rollover failed", log.FieldError, err)
			}
		}
	}
}
