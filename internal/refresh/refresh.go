package refresh

import (
	"context"
	"log/slog"
	"time"
)

// Run calls trigger every interval until ctx is done. A non-positive
// interval disables the loop.
func Run(ctx context.Context, interval time.Duration, logger *slog.Logger, trigger func()) {
	if interval <= 0 {
		logger.Debug("periodic refresh disabled")
		return
	}

	logger.Info("starting periodic refresh", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("periodic refresh stopped")
			return
		case <-ticker.C:
			trigger()
		}
	}
}
