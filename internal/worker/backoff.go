package worker

import "time"

// Backoff computes retry delays: Base * 2^(attempt-1), capped at Cap.
// Deterministic (no jitter) so the retry schedule is predictable; the
// per-job delayed queue already spreads redeliveries out.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Delay returns the wait before retrying after failed attempt n (1-indexed).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Cap > 0 && d >= b.Cap {
			return b.Cap
		}
	}
	if b.Cap > 0 && d > b.Cap {
		return b.Cap
	}
	return d
}
