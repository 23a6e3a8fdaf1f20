package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const minIdle = time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiters holds one token bucket per key and drops buckets that have
// not been touched for idle.
type keyedLimiters[K comparable] struct {
	mu        sync.Mutex
	entries   map[K]*limiterEntry
	rate      rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newKeyedLimiters[K comparable](r rate.Limit, burst int, idle time.Duration) *keyedLimiters[K] {
	if idle < minIdle {
		idle = minIdle
	}
	return &keyedLimiters[K]{
		entries:   make(map[K]*limiterEntry),
		rate:      r,
		burst:     burst,
		idle:      idle,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (k *keyedLimiters[K]) get(key K) *rate.Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := k.now()
	if now.Sub(k.lastSweep) >= k.idle {
		k.sweep(now)
	}

	entry, ok := k.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(k.rate, k.burst)}
		k.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// sweep removes idle entries. Caller holds mu.
func (k *keyedLimiters[K]) sweep(now time.Time) {
	for key, entry := range k.entries {
		if now.Sub(entry.lastSeen) >= k.idle {
			delete(k.entries, key)
		}
	}
	k.lastSweep = now
}

func (k *keyedLimiters[K]) len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
