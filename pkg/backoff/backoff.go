// Package backoff holds the retry policy consulted by the remote fetcher
// when the CRM answers 401 or 429.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/agentstation/crmsync/pkg/constants"
	"github.com/agentstation/crmsync/pkg/errors"
)

// Policy is a retry policy value. The zero Multiplier means 1, which
// gives the fixed cooldown the remote API expects.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps the computed delay. Zero means no cap.
	MaxDelay time.Duration
	// Multiplier grows the delay per attempt.
	Multiplier float64
	// Jitter is the fraction of the delay randomized in either direction (0..1).
	Jitter float64
}

// Default returns the fixed-cooldown policy.
func Default() Policy {
	return Policy{
		MaxAttempts: constants.MaxRateLimitRetries,
		BaseDelay:   constants.RemoteCooldown,
		Multiplier:  1,
	}
}

// Validate checks the policy for nonsensical values.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return errors.NewValidationError("max_attempts", p.MaxAttempts, "must be at least 1")
	}
	if p.BaseDelay < 0 {
		return errors.NewValidationError("base_delay", p.BaseDelay, "must not be negative")
	}
	if p.Multiplier < 0 {
		return errors.NewValidationError("multiplier", p.Multiplier, "must not be negative")
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return errors.NewValidationError("jitter", p.Jitter, "must be between 0 and 1")
	}
	return nil
}

// Exhausted reports whether attempt (1-based) was the last one allowed.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult == 0 {
		mult = 1
	}

	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Wait sleeps for d, as returned by Delay, or until ctx is done. The
// caller passes the delay so the wait it logs is the wait it gets.
func (p Policy) Wait(ctx context.Context, d time.Duration) error {
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
