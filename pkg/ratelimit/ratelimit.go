// Package ratelimit bounds outbound calls to the remote CRM within a
// rolling window. One Limiter is constructed per run and shared by every
// goroutine that talks to the remote API.
//
// Once the window's budget is spent, the next caller opens a new window
// that starts one cooldown in the future. Callers arriving meanwhile
// reserve slots in that future window and sleep until it opens, so the
// budget holds even when many workers call Allow at once.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/agentstation/crmsync/pkg/constants"
)

// Limiter is a windowed call counter with a fixed cooldown.
type Limiter struct {
	mu          sync.Mutex
	ceiling     int
	window      time.Duration
	cooldown    time.Duration
	count       int
	windowStart time.Time
	waits       int

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithWindow sets the window length. Defaults to 60s.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.window = d
		}
	}
}

// WithCooldown sets the pause applied once the ceiling is reached. Defaults to 60s.
func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) {
		if d >= 0 {
			l.cooldown = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSleep injects the wait function.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// New creates a Limiter allowing ceiling calls per window.
// A ceiling of zero or less disables limiting.
func New(ceiling int, opts ...Option) *Limiter {
	l := &Limiter{
		ceiling:  ceiling,
		window:   constants.RateLimitWindow,
		cooldown: constants.RateLimitCooldown,
		now:      time.Now,
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow waits until a call may be made and then returns.
// The only error it returns is the context's, when cancelled while waiting.
func (l *Limiter) Allow(ctx context.Context) error {
	if l == nil || l.ceiling <= 0 {
		return ctx.Err()
	}

	wait := l.reserve()
	if wait <= 0 {
		return ctx.Err()
	}
	return l.sleep(ctx, wait)
}

// reserve claims a slot and returns how long the caller must wait for it.
func (l *Limiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.count = 0
		l.windowStart = now
	}

	if l.count >= l.ceiling {
		start := now
		if l.windowStart.After(now) {
			start = l.windowStart
		}
		l.windowStart = start.Add(l.cooldown)
		l.count = 0
		l.waits++
	}

	l.count++
	if l.windowStart.After(now) {
		return l.windowStart.Sub(now)
	}
	return 0
}

// Stats is a snapshot of the limiter state for progress logs.
type Stats struct {
	Count       int
	Ceiling     int
	WindowStart time.Time
	Cooldowns   int
}

// Stats returns the current counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Count:       l.count,
		Ceiling:     l.ceiling,
		WindowStart: l.windowStart,
		Cooldowns:   l.waits,
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
