package auth

import (
	"strings"
	"sync"
	"time"
)

// RateLimiter throttles failed logins. Failures are counted per IP+email
// pair and, with a higher ceiling, per IP across all emails. Reaching either
// limit inside the window locks that key out for LockoutDuration.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu       sync.Mutex
	accounts map[string]*failureWindow
	ips      map[string]*failureWindow

	done     chan struct{}
	stopOnce sync.Once
}

type RateLimitConfig struct {
	MaxAttempts      int           // per IP+email (default: 5)
	MaxAttemptsPerIP int           // per IP over all emails (default: 4 × MaxAttempts)
	WindowDuration   time.Duration // default: 15m
	LockoutDuration  time.Duration // default: 30m
	CleanupInterval  time.Duration // default: 5m
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts:      5,
		MaxAttemptsPerIP: 20,
		WindowDuration:   15 * time.Minute,
		LockoutDuration:  30 * time.Minute,
		CleanupInterval:  5 * time.Minute,
	}
}

// failureWindow counts failures since the first one in the current window.
type failureWindow struct {
	count       int
	since       time.Time
	lockedUntil time.Time
}

func (w *failureWindow) lockRemaining(now time.Time) time.Duration {
	if now.Before(w.lockedUntil) {
		return w.lockedUntil.Sub(now)
	}
	return 0
}

// fail records one failure and returns the lockout it triggered, if any.
func (w *failureWindow) fail(now time.Time, limit int, cfg RateLimitConfig) time.Duration {
	if now.Sub(w.since) > cfg.WindowDuration && w.lockRemaining(now) == 0 {
		*w = failureWindow{since: now}
	}
	w.count++
	if w.count >= limit {
		w.lockedUntil = now.Add(cfg.LockoutDuration)
		return cfg.LockoutDuration
	}
	return 0
}

func (w *failureWindow) expired(now time.Time, cfg RateLimitConfig) bool {
	return now.Sub(w.since) > cfg.WindowDuration && w.lockRemaining(now) == 0
}

// NewRateLimiter fills zero config values with defaults and starts the
// sweeper; call Stop when done.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.MaxAttemptsPerIP <= 0 {
		cfg.MaxAttemptsPerIP = 4 * cfg.MaxAttempts
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}

	rl := &RateLimiter{
		cfg:      cfg,
		now:      time.Now,
		accounts: map[string]*failureWindow{},
		ips:      map[string]*failureWindow{},
		done:     make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// Stop ends the sweeper. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

func accountKey(ip, email string) string {
	return ip + "|" + strings.ToLower(strings.TrimSpace(email))
}

// Allow reports whether a login for email from ip may proceed, and if not,
// how long until it may.
func (rl *RateLimiter) Allow(ip, email string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	var wait time.Duration
	if w, ok := rl.accounts[accountKey(ip, email)]; ok {
		wait = w.lockRemaining(now)
	}
	if w, ok := rl.ips[ip]; ok {
		wait = max(wait, w.lockRemaining(now))
	}
	return wait == 0, wait
}

// RecordFailure counts a failed login and reports whether it caused a
// lockout and for how long.
func (rl *RateLimiter) RecordFailure(ip, email string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	lockout := windowFor(rl.accounts, accountKey(ip, email), now).fail(now, rl.cfg.MaxAttempts, rl.cfg)
	lockout = max(lockout, windowFor(rl.ips, ip, now).fail(now, rl.cfg.MaxAttemptsPerIP, rl.cfg))
	return lockout > 0, lockout
}

// RecordSuccess forgets the failures of this IP+email pair. The per-IP count
// is kept so a valid login cannot reset a spray across other accounts.
func (rl *RateLimiter) RecordSuccess(ip, email string) {
	rl.mu.Lock()
	delete(rl.accounts, accountKey(ip, email))
	rl.mu.Unlock()
}

func windowFor(m map[string]*failureWindow, key string, now time.Time) *failureWindow {
	w, ok := m[key]
	if !ok {
		w = &failureWindow{since: now}
		m[key] = w
	}
	return w
}

func (rl *RateLimiter) sweep() {
	ticker := time.NewTicker(rl.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for _, m := range []map[string]*failureWindow{rl.accounts, rl.ips} {
		for key, w := range m {
			if w.expired(now, rl.cfg) {
				delete(m, key)
			}
		}
	}
}
