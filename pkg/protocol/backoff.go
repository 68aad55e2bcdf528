package protocol

import (
	"sync"
	"time"
)

// Backoff produces the reconnect delay sequence: base, doubling after
// every failed attempt, capped at max, reset to base on success.
type Backoff struct {
	base time.Duration
	max  time.Duration

	mu   sync.Mutex
	next time.Duration
}

// NewBackoff creates a backoff starting at base and capped at max.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max, next: base}
}

// Next returns the delay to wait before the upcoming attempt and advances
// the sequence.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset returns the sequence to the base delay. Called after a successful
// reconnect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next = b.base
}
