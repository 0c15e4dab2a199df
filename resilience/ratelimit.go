package resilience

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonwraymond/msgops/fault"
)

// GlobalKey is the rate limit key used when RateLimiterConfig.Key is nil.
const GlobalKey = "global"

// RateLimiterConfig configures a sliding-window rate limiter. A zero limit
// disables its window; with every limit zero all sends are admitted.
type RateLimiterConfig struct {
	MessagesPerSecond int
	MessagesPerMinute int
	MessagesPerHour   int
	MessagesPerDay    int

	// Key maps a call to the key its window is tracked under.
	// Default: every call shares GlobalKey
	Key func(*Call) string

	// Now is the clock.
	// Default: time.Now
	Now func() time.Time
}

// PerProvider keys rate windows by provider id.
func PerProvider(c *Call) string { return c.ProviderID }

type window struct {
	name  string
	size  time.Duration
	limit int
}

// RateLimiter admits sends while the number of admissions within each
// configured window stays below its limit. Timestamps older than the
// largest window are pruned on every admission check.
//
// A RateLimiter is safe for concurrent use; checking and recording an
// admission is atomic.
type RateLimiter struct {
	key     func(*Call) string
	now     func() time.Time
	windows []window
	horizon time.Duration

	mu    sync.Mutex
	stamp map[string][]time.Time // ascending
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.Key == nil {
		cfg.Key = func(*Call) string { return GlobalKey }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	rl := &RateLimiter{key: cfg.Key, now: cfg.Now, stamp: make(map[string][]time.Time)}
	for _, w := range []window{
		{"second", time.Second, cfg.MessagesPerSecond},
		{"minute", time.Minute, cfg.MessagesPerMinute},
		{"hour", time.Hour, cfg.MessagesPerHour},
		{"day", 24 * time.Hour, cfg.MessagesPerDay},
	} {
		if w.limit > 0 {
			rl.windows = append(rl.windows, w)
			rl.horizon = w.size
		}
	}
	return rl
}

// Middleware returns the hook that rejects sends over the limit.
func (rl *RateLimiter) Middleware() Middleware {
	return Middleware{
		Name: "ratelimit",
		Pre: func(_ context.Context, call *Call) *fault.Error {
			return rl.Allow(rl.key(call))
		},
	}
}

// Allow records an admission for key, or returns RATE_LIMIT_EXCEEDED with
// the exceeded window in its context and a RetryAfter hint in its details.
func (rl *RateLimiter) Allow(key string) *fault.Error {
	if len(rl.windows) == 0 {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()

	stamps := prune(rl.stamp[key], now.Add(-rl.horizon))
	for _, w := range rl.windows {
		inWindow := stamps[firstAfter(stamps, now.Add(-w.size)):]
		if len(inWindow) >= w.limit {
			rl.stamp[key] = stamps
			retryAfter := inWindow[len(inWindow)-w.limit].Add(w.size).Sub(now)
			return fault.Local(fault.CodeRateLimitExceeded, "ratelimit",
				fmt.Sprintf("Rate limit exceeded: %d messages per %s", w.limit, w.name), ErrRateLimitExceeded).
				WithContext("window", w.name).
				WithContext("limit", w.limit).
				WithContext("key", key).
				WithDetails(fault.ProviderDetails{RetryAfter: retryAfter})
		}
	}
	rl.stamp[key] = append(stamps, now)
	return nil
}

// Count returns the number of admissions for key within the largest window.
func (rl *RateLimiter) Count(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	stamps := prune(rl.stamp[key], now.Add(-rl.horizon))
	rl.stamp[key] = stamps
	return len(stamps)
}

// Reset forgets every admission.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	rl.stamp = make(map[string][]time.Time)
	rl.mu.Unlock()
}

// firstAfter returns the index of the first stamp after t.
func firstAfter(stamps []time.Time, t time.Time) int {
	return sort.Search(len(stamps), func(i int) bool { return stamps[i].After(t) })
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := firstAfter(stamps, cutoff)
	if i == 0 {
		return stamps
	}
	return append(stamps[:0:0], stamps[i:]...)
}
