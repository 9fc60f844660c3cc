package softlaunch

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Operation names used for retry delays, logging and metrics.
const (
	OpStart    = "start"
	OpProgress = "progress"
	OpMonitor  = "monitor"
	OpPause    = "pause"
	OpResults  = "results"
	OpPromote  = "promote"
)

// RetryPolicy bounds the attempts made for each remote call. The wait before
// attempt k+1 is BaseDelay(op) * 2^(k-1).
type RetryPolicy struct {
	MaxAttempts int
	BaseDelays  map[string]time.Duration
}

// DefaultPolicy returns three attempts with per-operation base delays.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelays: map[string]time.Duration{
			OpStart:    300 * time.Millisecond,
			OpProgress: 200 * time.Millisecond,
			OpMonitor:  200 * time.Millisecond,
			OpPause:    150 * time.Millisecond,
			OpResults:  250 * time.Millisecond,
			OpPromote:  200 * time.Millisecond,
		},
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the wait that follows failed attempt k (1-based).
func (p RetryPolicy) Backoff(op string, k int) time.Duration {
	if k < 1 {
		k = 1
	}
	return p.BaseDelays[op] << (k - 1)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
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

// retry runs fn until it succeeds or the policy is exhausted.
func (c *Controller) retry(ctx context.Context, op, projectID string, fn func(context.Context) error) error {
	limit := c.policy.attempts()
	var (
		last     error
		attempts int
	)
	for attempts < limit {
		if err := ctx.Err(); err != nil {
			last = err
			break
		}
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		last = err
		c.log.Warn("soft-launch call failed",
			zap.String("context", op),
			zap.String("project_id", projectID),
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", limit),
			zap.Error(err),
		)
		if attempts == limit {
			break
		}
		retriesTotal.WithLabelValues(op).Inc()
		if err := c.sleep(ctx, c.policy.Backoff(op, attempts)); err != nil {
			last = err
			break
		}
	}
	le := &LifecycleError{Op: op, Attempts: attempts, Err: last}
	if !le.Cancelled() {
		exhaustedTotal.WithLabelValues(op).Inc()
	}
	return le
}
