package gateway

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// FixedBackoff retries forever at a constant interval.
func FixedBackoff(d time.Duration) backoff.BackOff {
	return backoff.NewConstantBackOff(d)
}

// ExponentialBackoff doubles the delay from initial up to max with 50%
// jitter. maxElapsed of zero never gives up; otherwise the connection
// moves to Closed once that much time has passed without an open.
func ExponentialBackoff(initial, max, maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = max
	b.MaxElapsedTime = maxElapsed
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}
