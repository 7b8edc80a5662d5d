package limiter

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger removes stale counters.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// RunPurge calls p.Purge every interval until ctx is done.
func RunPurge(ctx context.Context, p Purger, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Purge(ctx)
			if err != nil {
				log.Warn("limiter purge", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("limiter purge", zap.Int64("removed", n))
			}
		}
	}
}
