package softlaunch

import (
	"context"
	"errors"
	"fmt"
)

// LifecycleError is returned once a soft-launch operation has used up its
// retry budget. It unwraps to the error of the final attempt.
type LifecycleError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *LifecycleError) Error() string {
	if e.Cancelled() {
		return fmt.Sprintf("soft launch %s cancelled after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("soft launch %s failed after %d attempt(s): %v. Check your network connection and service configuration, or contact support if the problem persists",
		e.Op, e.Attempts, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// Cancelled reports whether the operation stopped because its context was
// cancelled rather than because the service kept failing.
func (e *LifecycleError) Cancelled() bool { return errors.Is(e.Err, context.Canceled) }
