// Package retry holds the shared backoff policy used by the outbound
// pipeline and the subscription renewal scheduler.
package retry

import (
	"math/rand"
	"time"
)

// Policy is an exponential backoff with a cap and additive jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
}

// DefaultPolicy returns the standard outbound retry tuning.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      250 * time.Millisecond,
	}
}

// Backoff returns the deterministic delay before the given attempt: base
// doubled per prior attempt, capped at MaxDelay. Attempt numbering starts
// at 1.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := uint(attempt - 1)
	if shift > 62 {
		shift = 62
	}
	delay := p.BaseDelay << shift
	if delay < 0 || (p.MaxDelay > 0 && delay > p.MaxDelay) {
		delay = p.MaxDelay
	}
	return delay
}

// Delay returns the backoff for attempt plus random jitter up to Jitter.
func (p Policy) Delay(attempt int) time.Duration {
	delay := p.Backoff(attempt)
	if p.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(p.Jitter) + 1))
	}
	return delay
}

// Exhausted reports whether attempt has reached the attempt limit.
func (p Policy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts
}
