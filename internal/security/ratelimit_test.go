package security

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRateLimiter_AllowWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{RequestsPerMin: 5})

	for i := range 5 {
		if err := rl.Allow(BucketRequest); err != nil {
			t.Fatalf("Allow(%d) returned error: %v", i, err)
		}
	}

	// 6th should be denied.
	if err := rl.Allow(BucketRequest); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(RateLimitConfig{WritesPerMin: 2})
	rl.now = func() time.Time { return now }

	_ = rl.Allow(BucketWrite)
	_ = rl.Allow(BucketWrite)

	if err := rl.Allow(BucketWrite); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit")
	}

	// Advance past the window.
	now = now.Add(61 * time.Second)

	if err := rl.Allow(BucketWrite); err != nil {
		t.Fatalf("expected allow after window, got %v", err)
	}
}

func TestRateLimiter_UnknownKind(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	if err := rl.Allow("unknown_kind"); err != nil {
		t.Fatalf("expected nil for unknown kind, got %v", err)
	}
}

func TestRateLimiter_DisabledBucket(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{AuthPerMin: -1})

	for range 1000 {
		if err := rl.Allow(BucketAuth); err != nil {
			t.Fatalf("disabled bucket limited: %v", err)
		}
	}
}

func TestRateLimiter_AllowN(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{WritesPerMin: 100})

	if err := rl.AllowN(BucketWrite, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rl.AllowN(BucketWrite, 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := rl.AllowN(BucketWrite, 1); !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected rate limit for writes")
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	tests := map[string]int{
		BucketRequest: 600,
		BucketWrite:   120,
		BucketAuth:    30,
	}
	for kind, want := range tests {
		if got := rl.buckets[kind].limit; got != want {
			t.Errorf("default %s limit = %d, want %d", kind, got, want)
		}
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{RequestsPerMin: 1000})

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rl.Allow(BucketRequest)
		}()
	}
	wg.Wait()

	if got := len(rl.buckets[BucketRequest].events); got != 100 {
		t.Errorf("events = %d, want 100", got)
	}
}

func TestRateLimiter_AllowN_Unknown(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(RateLimitConfig{})

	if err := rl.AllowN("nonexistent", 999); err != nil {
		t.Fatalf("expected nil for unknown kind, got %v", err)
	}
}
