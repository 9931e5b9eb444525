package transactions

import (
	"context"
	"time"
)

// detachedContext keeps the values of its parent but never expires, commit
// runs to completion once started.
type detachedContext struct {
	parent context.Context
}

func (c detachedContext) Deadline() (time.Time, bool)       { return time.Time{}, false }
func (c detachedContext) Done() <-chan struct{}             { return nil }
func (c detachedContext) Err() error                        { return nil }
func (c detachedContext) Value(key interface{}) interface{} { return c.parent.Value(key) }

func detachContext(ctx context.Context) context.Context {
	return detachedContext{parent: ctx}
}

func operationContext(ctx context.Context, opTimeout time.Duration) (context.Context, context.CancelFunc) {
	if opTimeout > 0 {
		return context.WithTimeout(ctx, opTimeout)
	}

	return context.WithCancel(ctx)
}
