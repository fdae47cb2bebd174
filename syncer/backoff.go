package syncer

import (
	"math/rand"
	"time"
)

// Backoff computes retry delays: exponential growth from Base by Factor,
// capped at Cap, with optional proportional jitter.
type Backoff struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
	// Jitter is the fraction of the delay randomized in both directions,
	// e.g. 0.1 spreads each delay over ±10%. Zero disables jitter.
	Jitter float64
}

// DefaultBackoff matches the sync retry policy: 1s, 2s, 4s, ... capped at
// 60s with ±10% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Factor: 2,
		Cap:    60 * time.Second,
		Jitter: 0.1,
	}
}

// Delay returns the wait before retry number attempt (1-based: the delay
// after the first failure is Delay(1) == Base).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(b.Base)
	for i := 1; i < attempt; i++ {
		d *= b.Factor
		if d >= float64(b.Cap) {
			d = float64(b.Cap)
			break
		}
	}
	if d > float64(b.Cap) {
		d = float64(b.Cap)
	}

	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}
