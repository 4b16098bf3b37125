package queue

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy bounds the read-modify-write retry loop around every store
// mutation. The medium has no transactions; a concurrent writer can clobber
// an update between our read and write, or a transient I/O error can fail a
// write outright. Bounded retries with exponential backoff plus jitter
// shrink the race window without synchronized retry storms.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy mirrors the atomic-operation helper defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 5, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.Attempts <= 0 {
		p.Attempts = 5
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 50 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = time.Second
	}
	return p
}

// Do runs op, retrying on any error up to the attempt budget. The last error
// is surfaced once the budget is exhausted.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	p = p.withDefaults()
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay(attempt)):
			}
		}
		if err = op(); err == nil {
			return nil
		}
	}
	return fmt.Errorf("queue: giving up after %d attempts: %w", p.Attempts, err)
}

// delay is exponential in the attempt number with up to 50% random jitter.
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt-1)
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
