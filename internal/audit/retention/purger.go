package retention

import (
	"context"
	"log/slog"
	"time"
)

// Purger deletes records older than the store's expiry index allows. Stores
// with native expiry do not need one.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// PurgeRecorder receives purge counts; *metrics.Metrics satisfies it.
type PurgeRecorder interface {
	AddPurged(n int64)
}

// RunPurger calls PurgeExpired every interval until ctx is cancelled. Failed
// purges are logged and retried on the next tick.
func RunPurger(ctx context.Context, p Purger, interval time.Duration, logger *slog.Logger, rec PurgeRecorder) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := p.PurgeExpired(ctx, now)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.WarnContext(ctx, "retention purge failed", "error", err)
				continue
			}
			if rec != nil {
				rec.AddPurged(n)
			}
			if n > 0 {
				logger.InfoContext(ctx, "retention purge removed expired records", "count", n)
			}
		}
	}
}
