package postgres

import (
	"context"
	"time"
)

// QueryContext returns a context bounded by timeout, or DefaultQueryTimeout
// (30s) if timeout is zero. Provider.Read/Write/Delete and its schema setup
// each wrap their round trip in one of these (CheckHealth's ping runs under
// the caller's context only) so a stalled connection surfaces
// as a provider failure instead of hanging the calling DataIO bulkhead slot.
func QueryContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = DefaultQueryTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
