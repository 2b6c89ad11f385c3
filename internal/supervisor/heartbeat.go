package supervisor

import (
	"context"
	"time"

	"candle-alerts/internal/notification"
)

// HeartbeatKey is the dedup key used for heartbeat alerts.
const HeartbeatKey = "heartbeat"

// Dispatcher is the subset of the alert dispatcher a heartbeat needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, title, body, key string) notification.Outcome
}

// Heartbeat returns a task that dispatches a "Heartbeat" alert every
// interval. body is rendered at each beat. A non-positive interval yields a
// task that just waits for shutdown.
func Heartbeat(interval time.Duration, d Dispatcher, body func() string) Task {
	return func(ctx context.Context) error {
		if interval <= 0 {
			<-ctx.Done()
			return nil
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				msg := "alive"
				if body != nil {
					msg = body()
				}
				d.Dispatch(ctx, "Heartbeat", msg, HeartbeatKey)
			}
		}
	}
}
