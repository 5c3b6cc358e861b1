package poller

import (
	"context"
	"sync"
	"time"
)

// MemoryCooldowns keeps cooldowns in process. Used with COOLDOWN_BACKEND=memory
// and in tests.
type MemoryCooldowns struct {
	mu    sync.Mutex
	until map[string]time.Time
}

func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{until: map[string]time.Time{}}
}

func (m *MemoryCooldowns) CooldownUntil(_ context.Context, account string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.until[account], nil
}

func (m *MemoryCooldowns) StartCooldown(_ context.Context, account string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until.After(m.until[account]) {
		m.until[account] = until
	}
	return nil
}
