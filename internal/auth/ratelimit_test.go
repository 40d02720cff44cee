package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, now *time.Time) *RateLimiter {
	t.Helper()
	rl := NewRateLimiter(RateLimitConfig{
		MaxAttempts:     3,
		WindowDuration:  10 * time.Minute,
		LockoutDuration: 30 * time.Minute,
		CleanupInterval: time.Hour,
	})
	rl.now = func() time.Time { return *now }
	t.Cleanup(rl.Stop)
	return rl
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows until the limit then locks out", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(t, &now)

		for i := 0; i < 2; i++ {
			allowed, _ := rl.Allow("10.0.0.1", "a@campus.edu")
			assert.True(t, allowed)
			locked, _ := rl.RecordFailure("10.0.0.1", "a@campus.edu")
			assert.False(t, locked)
		}

		locked, retryAfter := rl.RecordFailure("10.0.0.1", "a@campus.edu")
		assert.True(t, locked)
		assert.Equal(t, 30*time.Minute, retryAfter)

		now = now.Add(10 * time.Minute)
		allowed, retryAfter := rl.Allow("10.0.0.1", "a@campus.edu")
		assert.False(t, allowed)
		assert.Equal(t, 20*time.Minute, retryAfter)

		now = now.Add(21 * time.Minute)
		allowed, _ = rl.Allow("10.0.0.1", "a@campus.edu")
		assert.True(t, allowed)
	})

	t.Run("keys on ip and normalized email", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(t, &now)

		for i := 0; i < 3; i++ {
			rl.RecordFailure("10.0.0.1", "a@campus.edu")
		}

		allowed, _ := rl.Allow("10.0.0.1", " A@Campus.EDU ")
		assert.False(t, allowed)

		allowed, _ = rl.Allow("10.0.0.2", "a@campus.edu")
		assert.True(t, allowed)

		allowed, _ = rl.Allow("10.0.0.1", "b@campus.edu")
		assert.True(t, allowed)
	})

	t.Run("success clears failures", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(t, &now)

		rl.RecordFailure("10.0.0.1", "a@campus.edu")
		rl.RecordFailure("10.0.0.1", "a@campus.edu")
		rl.RecordSuccess("10.0.0.1", "a@campus.edu")

		locked, _ := rl.RecordFailure("10.0.0.1", "a@campus.edu")
		assert.False(t, locked)
	})

	t.Run("failures outside the window start over", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(t, &now)

		rl.RecordFailure("10.0.0.1", "a@campus.edu")
		rl.RecordFailure("10.0.0.1", "a@campus.edu")
		now = now.Add(11 * time.Minute)

		locked, _ := rl.RecordFailure("10.0.0.1", "a@campus.edu")
		assert.False(t, locked)
	})

	t.Run("cleanup drops expired records", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		rl := newTestLimiter(t, &now)

		rl.RecordFailure("10.0.0.1", "a@campus.edu")
		now = now.Add(time.Hour)
		rl.cleanup()

		rl.mu.Lock()
		defer rl.mu.Unlock()
		assert.Empty(t, rl.accounts)
		assert.Empty(t, rl.ips)
	})

	t.Run("ip ceiling spans emails", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(RateLimitConfig{
			MaxAttempts:      3,
			MaxAttemptsPerIP: 4,
			WindowDuration:   10 * time.Minute,
			LockoutDuration:  30 * time.Minute,
			CleanupInterval:  time.Hour,
		})
		rl.now = func() time.Time { return now }
		t.Cleanup(rl.Stop)

		for _, email := range []string{"a@campus.edu", "b@campus.edu", "c@campus.edu"} {
			locked, _ := rl.RecordFailure("10.0.0.9", email)
			assert.False(t, locked)
		}
		locked, _ := rl.RecordFailure("10.0.0.9", "d@campus.edu")
		assert.True(t, locked)

		allowed, _ := rl.Allow("10.0.0.9", "fresh@campus.edu")
		assert.False(t, allowed)
		allowed, _ = rl.Allow("10.0.0.10", "a@campus.edu")
		assert.True(t, allowed)
	})

	t.Run("success keeps the ip count", func(t *testing.T) {
		now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(RateLimitConfig{MaxAttempts: 3, MaxAttemptsPerIP: 3})
		rl.now = func() time.Time { return now }
		t.Cleanup(rl.Stop)

		rl.RecordFailure("10.0.0.1", "a@campus.edu")
		rl.RecordFailure("10.0.0.1", "b@campus.edu")
		rl.RecordSuccess("10.0.0.1", "a@campus.edu")

		locked, _ := rl.RecordFailure("10.0.0.1", "c@campus.edu")
		assert.True(t, locked)
	})

	t.Run("zero config takes defaults", func(t *testing.T) {
		rl := NewRateLimiter(RateLimitConfig{MaxAttempts: 2})
		t.Cleanup(rl.Stop)
		assert.Equal(t, 8, rl.cfg.MaxAttemptsPerIP)
		assert.Equal(t, 15*time.Minute, rl.cfg.WindowDuration)
	})

	t.Run("stop is idempotent", func(t *testing.T) {
		rl := NewRateLimiter(DefaultRateLimitConfig())
		rl.Stop()
		assert.NotPanics(t, rl.Stop)
	})
}
