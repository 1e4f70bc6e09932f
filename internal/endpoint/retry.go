package endpoint

import (
	"context"
	"time"
)

// Backoff tracks the retry state of one request: the attempts left and the
// delay before the next one. The delay doubles after every retry up to max.
type Backoff struct {
	remaining int
	delay     time.Duration
	max       time.Duration
}

// NewBackoff allows attempts tries in total, waiting delay before the first retry
func NewBackoff(attempts int, delay, max time.Duration) *Backoff {
	if attempts < 1 {
		attempts = 1
	}
	return &Backoff{remaining: attempts, delay: delay, max: max}
}

// Next consumes a failed attempt. It returns the pause before the next
// attempt, or false when no attempts are left.
func (b *Backoff) Next() (time.Duration, bool) {
	b.remaining--
	if b.remaining <= 0 {
		return 0, false
	}
	d := b.delay
	if d > b.max {
		d = b.max
	}
	b.delay *= 2
	if b.delay > b.max {
		b.delay = b.max
	}
	return d, true
}

// Remaining returns how many attempts are still allowed
func (b *Backoff) Remaining() int {
	return b.remaining
}

// sleepContext pauses for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
