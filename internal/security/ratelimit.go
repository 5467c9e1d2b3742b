package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit buckets.
const (
	BucketRequest = "request"
	BucketWrite   = "write"
	BucketAuth    = "auth"
)

// RateLimitConfig holds configurable rate limits. Zero means default,
// a negative value disables the bucket.
type RateLimitConfig struct {
	RequestsPerMin int `yaml:"requests_per_min"`
	WritesPerMin   int `yaml:"writes_per_min"`
	AuthPerMin     int `yaml:"auth_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMin: 600,
		WritesPerMin:   120,
		AuthPerMin:     30,
	}
}

// RateLimiter implements sliding window rate limiting.
// Each bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	rl := &RateLimiter{
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	add := func(kind string, limit, def int) {
		switch {
		case limit < 0:
			return
		case limit == 0:
			limit = def
		}
		rl.buckets[kind] = &bucket{window: time.Minute, limit: limit}
	}
	add(BucketRequest, cfg.RequestsPerMin, defaults.RequestsPerMin)
	add(BucketWrite, cfg.WritesPerMin, defaults.WritesPerMin)
	add(BucketAuth, cfg.AuthPerMin, defaults.AuthPerMin)
	return rl
}

// Allow checks whether an event of the given kind is allowed.
// Returns nil if allowed, ErrRateLimited if the limit is exceeded.
func (rl *RateLimiter) Allow(kind string) error {
	return rl.AllowN(kind, 1)
}

// AllowN checks whether n events of the given kind are allowed.
func (rl *RateLimiter) AllowN(kind string, n int) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		// Unknown kind = no limit configured.
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events)+n > b.limit {
		return ErrRateLimited
	}

	for range n {
		b.events = append(b.events, now)
	}
	return nil
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	// Events are chronologically ordered.
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
