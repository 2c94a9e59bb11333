// Package ratelimit provides a throttle for operations that must not run more
// often than a configured interval, such as on-demand ruleset refreshes.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle limits an operation to once per interval with a burst of one.
// A nil Throttle, or one built with a non-positive interval, allows everything.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a throttle allowing one operation per interval.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		return &Throttle{}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Allow reports whether an operation may run now, consuming a slot if so.
func (t *Throttle) Allow() bool {
	if t == nil || t.limiter == nil {
		return true
	}
	return t.limiter.Allow()
}

// Wait blocks until an operation may run or the context is cancelled.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}
