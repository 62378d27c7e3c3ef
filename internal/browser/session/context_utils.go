// File: internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext derives a context from primary that is canceled when either
// primary or secondary is done. Values and deadline come from primary, which
// is what DevTools operations need: primary carries the target wiring, and
// secondary carries the caller's lifetime.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext passes through its parent's values but none of its
// cancellation or deadline.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that inherits values from ctx but outlives its
// cancellation. Cleanup paths use it so a canceled caller still reaches the
// browser.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
