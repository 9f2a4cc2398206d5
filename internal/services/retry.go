package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shy020501/Video-Automation/internal/models"
)

// RetryPolicy is a fixed-interval poll budget. There is no backoff.
type RetryPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

var (
	// SunoPollPolicy: check every 5s, give up after 10 minutes.
	SunoPollPolicy = RetryPolicy{MaxAttempts: 120, Interval: 5 * time.Second}

	// ReplicatePollPolicy: check every 2s, give up after 15 minutes.
	ReplicatePollPolicy = RetryPolicy{MaxAttempts: 450, Interval: 2 * time.Second}
)

// Poll waits Interval, then calls check, until check reports done, returns an
// error, the context is cancelled, or MaxAttempts is reached (ErrTimeout).
func (p RetryPolicy) Poll(ctx context.Context, what string, check func(attempt int) (bool, error)) error {
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if p.Interval > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s cancelled: %w", what, ctx.Err())
			case <-time.After(p.Interval):
			}
		} else if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s cancelled: %w", what, err)
		}

		done, err := check(attempt)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("%w: %s did not finish after %d attempts", models.ErrTimeout, what, p.MaxAttempts)
}
