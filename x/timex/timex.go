// Package timex holds small time helpers shared by the adapter and tests.
package timex

import (
	"context"
	"time"
)

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// Bound derives a context that ends after d. A d of zero or less leaves
// ctx unbounded; the returned cancel is always safe to call.
func Bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
