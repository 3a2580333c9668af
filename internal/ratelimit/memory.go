package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	maxEntries      = 10000
	cleanupInterval = 5 * time.Minute
	entryTTL        = 15 * time.Minute
)

type entry struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
	lastAccess   time.Time
}

// MemoryLimiter keeps counters in process memory. The whole
// check-and-increment runs under one lock, so concurrent requests for the
// same key serialize and exactly one of them takes the last slot.
type MemoryLimiter struct {
	mu       sync.Mutex
	entries  map[string]*entry
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiter creates an in-memory limiter and starts its cleanup
// goroutine, which exits when ctx is cancelled or Close is called.
func NewMemoryLimiter(ctx context.Context) *MemoryLimiter {
	l := &MemoryLimiter{
		entries: make(map[string]*entry),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop(ctx)
	return l
}

// Check counts one request against (identifier, action).
func (l *MemoryLimiter) Check(ctx context.Context, identifier, action string, cfg Config) (Decision, error) {
	key := identifier + ":" + action
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		if len(l.entries) >= maxEntries {
			l.evictOldest()
		}
		e = &entry{windowStart: now}
		l.entries[key] = e
	}
	e.lastAccess = now

	// An active block denies regardless of window state
	if now.Before(e.blockedUntil) {
		return Decision{RetryAfter: ceilSeconds(e.blockedUntil.Sub(now))}, nil
	}

	if now.Sub(e.windowStart) >= cfg.Window {
		e.count = 0
		e.windowStart = now
	}

	if e.count >= cfg.MaxRequests {
		if cfg.BlockDuration > 0 {
			e.blockedUntil = now.Add(cfg.BlockDuration)
			return Decision{RetryAfter: int(cfg.BlockDuration / time.Second)}, nil
		}
		return Decision{RetryAfter: ceilSeconds(e.windowStart.Add(cfg.Window).Sub(now))}, nil
	}

	e.count++
	return Decision{Allowed: true, Remaining: cfg.MaxRequests - e.count}, nil
}

// Reset clears all state for (identifier, action), including any block.
func (l *MemoryLimiter) Reset(ctx context.Context, identifier, action string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, identifier+":"+action)
	return nil
}

// Close stops the cleanup goroutine.
func (l *MemoryLimiter) Close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}

func (l *MemoryLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stop:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// cleanup removes idle entries. Blocked entries survive until their block
// expires no matter how stale they are.
func (l *MemoryLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, e := range l.entries {
		if now.Sub(e.lastAccess) > entryTTL && !now.Before(e.blockedUntil) {
			delete(l.entries, key)
		}
	}
}

// evictOldest drops the least recently used entry. Caller must hold mu.
func (l *MemoryLimiter) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, e := range l.entries {
		if oldestKey == "" || e.lastAccess.Before(oldestTime) {
			oldestKey = key
			oldestTime = e.lastAccess
		}
	}

	if oldestKey != "" {
		delete(l.entries, oldestKey)
	}
}
