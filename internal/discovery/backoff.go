package discovery

import (
	"sync"
	"time"
)

// Backoff paces discovery retries. It holds a single scalar interval:
// doubled on every failed attempt up to a cap, reset to the base on any
// success. It knows nothing about which port failed.
type Backoff struct {
	mu      sync.Mutex
	base    time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff returns a controller starting at base, capped at max.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, current: base}
}

// Failure doubles the interval (capped) and returns the new value.
func (b *Backoff) Failure() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current *= 2
	if b.current > b.max {
		b.current = b.max
	}
	return b.current
}

// Success resets the interval to the base value and returns it.
func (b *Backoff) Success() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.base
	return b.current
}

// Current returns the interval to wait before the next attempt.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}
