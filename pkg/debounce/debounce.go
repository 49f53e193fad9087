// Package debounce schedules a function on an interval such that runs
// never overlap: the next tick is scheduled interval after the previous
// run completed.
package debounce

import (
	"context"
	"time"
)

// Interval runs fn repeatedly, waiting `interval` after each completed run
// before starting the next one, until ctx is cancelled. It blocks the
// calling goroutine; callers typically invoke it via `go debounce.Interval(...)`.
func Interval(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			fn(ctx)
			timer.Reset(interval)
		}
	}
}

// Once runs fn immediately and then behaves like Interval.
func Once(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	fn(ctx)
	Interval(ctx, interval, fn)
}
