package transport

import (
	"math/rand/v2"
	"time"
)

// Backoff is an exponential reconnect delay policy with a ceiling and full
// jitter: the delay for an attempt is uniform in [0, min(Max, Initial*Multiplier^attempt)].
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// DefaultBackoff starts at 500ms and caps at 30s.
func DefaultBackoff() Backoff {
	return Backoff{Initial: 500 * time.Millisecond, Max: 30 * time.Second, Multiplier: 2}
}

func (b Backoff) normalized() Backoff {
	d := DefaultBackoff()
	if b.Initial <= 0 {
		b.Initial = d.Initial
	}
	if b.Max <= 0 {
		b.Max = d.Max
	}
	if b.Max < b.Initial {
		b.Max = b.Initial
	}
	if b.Multiplier < 1 {
		b.Multiplier = d.Multiplier
	}
	return b
}

// Ceiling returns the upper bound of the delay for a zero-based attempt.
func (b Backoff) Ceiling(attempt int) time.Duration {
	b = b.normalized()
	ceiling := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		ceiling *= b.Multiplier
		if ceiling >= float64(b.Max) {
			return b.Max
		}
	}
	return time.Duration(ceiling)
}

// Delay returns a jittered delay for a zero-based attempt.
func (b Backoff) Delay(attempt int) time.Duration {
	ceiling := b.Ceiling(attempt)
	return time.Duration(rand.Int64N(int64(ceiling) + 1))
}
