package ratelimit

import (
	"math"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig controls delay computation. Base interval and growth are
// taken from cenkalti/backoff/v4's ExponentialBackOff config fields;
// the jitter and retry-after override formula are CMC's own, since the
// library's own jitter is symmetric and can't substitute a provider
// retry-after base.
type BackoffConfig struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	JitterFrac float64 // e.g. 0.1 for ±10%
}

// DefaultBackoffConfig mirrors backoff/v4's own defaults for base interval
// and multiplier, with CMC's jitter fraction layered on top.
func DefaultBackoffConfig() BackoffConfig {
	eb := backoff.NewExponentialBackOff()
	return BackoffConfig{
		BaseDelay:  eb.InitialInterval,
		Multiplier: eb.Multiplier,
		MaxDelay:   eb.MaxInterval,
		JitterFrac: 0.1,
	}
}

// Delay computes the backoff for the given attempt (0-indexed), per
// spec: base × multiplier^attempt ± jitter, capped at maxDelay. If
// retryAfter is non-zero it replaces the exponential base but is still
// jittered and capped.
func (c BackoffConfig) Delay(attempt int, retryAfter time.Duration) time.Duration {
	base := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	if retryAfter > 0 {
		base = float64(retryAfter)
	}

	jitter := (rand.Float64()*2 - 1) * c.JitterFrac * base
	delay := base + jitter
	if delay < 0 {
		delay = 0
	}
	if max := float64(c.MaxDelay); max > 0 && delay > max {
		delay = max
	}
	return time.Duration(delay)
}
