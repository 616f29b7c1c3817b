// Package throttle wraps client-side request limiting shared by the model clients.
package throttle

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ErrWait marks a request that never left the process because the local limiter could not
// grant a slot before ctx ended.
var ErrWait = errors.New("client throttle wait failed")

// NewLimiter returns a limiter allowing rps requests per second. rps <= 0 disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return rate.NewLimiter(limit, 1)
}

// Wait blocks until l grants a slot. Failures wrap ErrWait.
func Wait(ctx context.Context, l *rate.Limiter) error {
	if err := l.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrWait, err)
	}
	return nil
}
