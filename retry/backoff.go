package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff computes the pause before the next attempt.
type Backoff interface {
	// Next returns how long to sleep before retrying attempt+1.
	// attempt starts at 1 for the first retry (i.e. after the first failed call).
	Next(attempt int) time.Duration
}

// ExponentialBackoff doubles (or multiplies by Multiplier) the delay after
// every failed attempt, capped at Max.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64 // <= 1 means 2
	Jitter     float64 // 0..1, fraction of the delay added or removed at random
}

// DefaultBackoff returns the backoff used when a policy leaves it unset.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{
		Initial:    500 * time.Millisecond,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	mult := b.Multiplier
	if mult <= 1 {
		mult = 2
	}

	d := float64(initial)
	for i := 1; i < attempt; i++ {
		d *= mult
		if d >= float64(maxDelay) {
			d = float64(maxDelay)
			break
		}
	}

	j := b.Jitter
	if j <= 0 {
		return time.Duration(d)
	}
	if j > 1 {
		j = 1
	}
	// +/- jitter%
	f := 1 + (rand.Float64()*2-1)*j
	return time.Duration(d * f)
}

// ConstantBackoff waits the same delay before every retry.
type ConstantBackoff time.Duration

func (b ConstantBackoff) Next(int) time.Duration { return time.Duration(b) }

// NoBackoff retries immediately.
type NoBackoff struct{}

func (NoBackoff) Next(int) time.Duration { return 0 }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
