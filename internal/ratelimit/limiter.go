package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PairAttemptKey scopes pair attempts to one remote address.
func PairAttemptKey(remoteIP string) string {
	return "pair:" + remoteIP
}

// Limiter decides whether one more attempt under key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a per-key token bucket refilled at limit per window.
type MemoryLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) bool {
	if m.limit <= 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.prune(now)

	entry, ok := m.entries[key]
	if !ok {
		every := rate.Every(m.window / time.Duration(m.limit))
		entry = &memoryEntry{limiter: rate.NewLimiter(every, m.limit)}
		m.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// PruneIdle drops idle keys and reports how many were removed.
func (m *MemoryLimiter) PruneIdle(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prune(m.now()), nil
}

// prune drops keys idle for longer than a full window; their buckets are full again.
func (m *MemoryLimiter) prune(now time.Time) int64 {
	var removed int64
	for key, entry := range m.entries {
		if now.Sub(entry.lastSeen) > m.window {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}
