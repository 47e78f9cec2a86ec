package app

import "time"

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// ReconnectPolicy decides the pacing of transport reconnection attempts.
// The schedule is pluggable rather than fixed: deployments behind flaky
// links want different pacing than ones on a LAN.
type ReconnectPolicy interface {
	// Next returns the delay to wait before the attempt-th try (1-based) and
	// whether the try should happen at all. Returning ok=false gives up:
	// the bridge settles into degraded RX-only operation.
	Next(attempt int) (delay time.Duration, ok bool)
}

// ExponentialBackoff is the default [ReconnectPolicy]: the delay starts at
// Initial and doubles each attempt up to Max, for at most MaxRetries
// attempts.
type ExponentialBackoff struct {
	// Initial is the delay before the first retry. Defaults to 1s if zero.
	Initial time.Duration

	// Max caps the per-attempt delay. Defaults to 30s if zero.
	Max time.Duration

	// MaxRetries is the number of attempts before giving up. Defaults to 10
	// if zero; negative means retry forever.
	MaxRetries int
}

// Next implements [ReconnectPolicy].
func (p ExponentialBackoff) Next(attempt int) (time.Duration, bool) {
	initial := p.Initial
	if initial <= 0 {
		initial = defaultBackoff
	}
	max := p.Max
	if max <= 0 {
		max = defaultMaxBackoff
	}
	retries := p.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}

	if attempt < 1 {
		attempt = 1
	}
	if retries > 0 && attempt > retries {
		return 0, false
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max, true
		}
	}
	if delay > max {
		delay = max
	}
	return delay, true
}
