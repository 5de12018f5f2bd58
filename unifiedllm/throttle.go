package unifiedllm

import (
	"context"
	"time"
)

// DefaultRequestDelay is the fixed pause taken before every model call.
const DefaultRequestDelay = 3 * time.Second

// FixedDelay returns middleware that waits d before every call. The wait is
// constant; it does not look at earlier responses or rate-limit headers.
// A cancelled context ends the wait early.
func FixedDelay(d time.Duration) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		if d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, &SDKError{Message: "request cancelled during pre-call delay", Cause: ctx.Err()}
			case <-timer.C:
			}
		}
		return next(ctx, req)
	}
}
