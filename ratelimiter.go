package dialogue

import (
	"sync"
	"time"
)

// RateLimiter is a keyed fixed-window counter used to bound history request
// volume per connection. Grounded on the teacher corpus's
// FixedWindowRateLimiter (HilthonTT-Visper/internal/infrastructure/
// ratelimiter/fixed-window.go): a map of key -> (count, resetAt), reset on
// window expiry, swept periodically by a non-blocking background ticker.
type RateLimiter struct {
	maxRequests int
	window      time.Duration

	mu      sync.Mutex
	entries map[string]*rateEntry

	sweepTicker *time.Ticker
	closeOnce   sync.Once
	done        chan struct{}
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

// NewRateLimiter creates a RateLimiter allowing maxRequests per window per
// key, and starts a background sweep goroutine that evicts expired entries
// so the map does not grow unbounded. Close must be called to stop the
// sweep when the limiter is no longer needed.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		entries:     make(map[string]*rateEntry),
		sweepTicker: time.NewTicker(window),
		done:        make(chan struct{}),
	}

	go rl.sweepLoop()

	return rl
}

// IsAllowed reports whether a request under key is allowed in the current
// window, incrementing the count as a side effect when it is.
func (rl *RateLimiter) IsAllowed(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[key]
	if !ok || now.After(entry.resetAt) || now.Equal(entry.resetAt) {
		rl.entries[key] = &rateEntry{count: 1, resetAt: now.Add(rl.window)}
		return true
	}

	if entry.count >= rl.maxRequests {
		return false
	}

	entry.count++
	return true
}

// Remaining returns how many requests key has left in its current window.
func (rl *RateLimiter) Remaining(key string) int {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[key]
	if !ok || now.After(entry.resetAt) || now.Equal(entry.resetAt) {
		return rl.maxRequests
	}

	remaining := rl.maxRequests - entry.count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Close stops the background sweep. Safe to call more than once.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
		rl.sweepTicker.Stop()
	})
}

func (rl *RateLimiter) sweepLoop() {
	for {
		select {
		case <-rl.sweepTicker.C:
			rl.sweep()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) sweep() {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.entries {
		if now.After(entry.resetAt) {
			delete(rl.entries, key)
		}
	}
}
