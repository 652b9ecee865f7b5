package client

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Backoff yields the pause before retry number attempt (0-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff grows the pause geometrically from Initial by
// Multiplier up to Ceiling. Spread randomises each pause by up to that
// fraction in either direction so retrying collectors do not hit the daemon
// in lockstep.
type ExponentialBackoff struct {
	Initial    time.Duration
	Ceiling    time.Duration
	Multiplier float64
	Spread     float64
}

// DefaultBackoff waits 100ms, 200ms, 400ms, ... up to 5s, spread by 20%.
func DefaultBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Initial:    100 * time.Millisecond,
		Ceiling:    5 * time.Second,
		Multiplier: 2,
		Spread:     0.2,
	}
}

func (b *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(b.Initial) * math.Pow(b.Multiplier, float64(attempt))
	if b.Ceiling > 0 && (d > float64(b.Ceiling) || math.IsInf(d, 1)) {
		d = float64(b.Ceiling)
	}
	if b.Spread > 0 {
		d *= 1 + b.Spread*(2*rand.Float64()-1)
	}
	return time.Duration(math.Max(d, 0))
}

// pause blocks for d or until ctx ends.
func pause(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
