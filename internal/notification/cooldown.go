package notification

import (
	"context"
	"sync"
	"time"
)

// CooldownStore decides whether a dedup key may be sent at now, and records the
// send atomically when it may. Implementations must be safe for concurrent
// use: two callers racing on the same key get exactly one true.
type CooldownStore interface {
	Allow(ctx context.Context, key string, now time.Time) (bool, error)
}

// MemoryCooldown is an in-process CooldownStore. A key is allowed when it was
// never sent or when strictly more than the window has passed since its
// last recorded send.
type MemoryCooldown struct {
	window time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewMemoryCooldown creates an in-process cooldown. A window <= 0 disables
// suppression.
func NewMemoryCooldown(window time.Duration) *MemoryCooldown {
	return &MemoryCooldown{
		window:   window,
		lastSent: make(map[string]time.Time),
	}
}

func (c *MemoryCooldown) Allow(_ context.Context, key string, now time.Time) (bool, error) {
	return c.allow(key, now), nil
}

func (c *MemoryCooldown) allow(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.window > 0 {
		if last, ok := c.lastSent[key]; ok && now.Sub(last) <= c.window {
			return false
		}
	}
	c.lastSent[key] = now
	return true
}
