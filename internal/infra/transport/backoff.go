package transport

import (
	"context"
	"time"
)

// linearBackoff waits step × retry before each retry.
type linearBackoff struct {
	step time.Duration
}

func newLinearBackoff(step time.Duration) linearBackoff {
	if step < 0 {
		step = 0
	}
	return linearBackoff{step: step}
}

// Delay returns the wait before the given retry (1-based).
func (b linearBackoff) Delay(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}
	return time.Duration(retry) * b.step
}

// Wait sleeps for Delay(retry) or until ctx is done.
func (b linearBackoff) Wait(ctx context.Context, retry int) error {
	delay := b.Delay(retry)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
