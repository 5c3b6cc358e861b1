package monitoring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const HEALTHCHECK_INTERVAL = 15 * time.Second

// Pinger is anything that can report whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MonitorHealth pings target every interval and stores the result in healthy
// until ctx is cancelled.
func MonitorHealth(ctx context.Context, name string, target Pinger, healthy *atomic.Bool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, interval)
			err := target.Ping(checkCtx)
			cancel()

			wasHealthy := healthy.Swap(err == nil)
			switch {
			case err != nil && wasHealthy:
				slog.Warn("[HealthCheck] Dependency is unhealthy",
					slog.String("name", name),
					slog.String("error", err.Error()))
			case err == nil && !wasHealthy:
				slog.Info("[HealthCheck] Dependency recovered", slog.String("name", name))
			}
		}
	}
}
