// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext derives a context from ctx1, keeping its values (the CDP
// target lives there), that is also canceled when ctx2 is done. If ctx2
// carries an earlier deadline than ctx1, the combined context adopts it.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	var (
		combined context.Context
		cancel   context.CancelFunc
	)
	if d, ok := ctx2.Deadline(); ok {
		combined, cancel = context.WithDeadline(ctx1, d)
	} else {
		combined, cancel = context.WithCancel(ctx1)
	}

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// WithTimeout combines ctx1 and ctx2 and additionally bounds the result by d.
// A non-positive d adds no bound.
func WithTimeout(ctx1, ctx2 context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	combined, cancel := CombineContext(ctx1, ctx2)
	if d <= 0 {
		return combined, cancel
	}
	bounded, cancelBounded := context.WithTimeout(combined, d)
	return bounded, func() {
		cancelBounded()
		cancel()
	}
}
