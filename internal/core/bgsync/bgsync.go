// Package bgsync runs the background loop that drains the emergency buffer
// back to the primary provider once it recovers. It is a long-lived task,
// not a library a caller calls synchronously; Start launches it and Stop
// cancels it with a one-interval grace period to finish its current pass.
package bgsync

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iruldev/concurrency-core/internal/core/dataio"
	"github.com/iruldev/concurrency-core/internal/core/provider"
	"github.com/iruldev/concurrency-core/internal/infra/emergencybuffer"
)

// batchSize bounds how many pending entries one pass attempts, so a large
// backlog can't starve the loop's own cancellation check.
const batchSize = 100

// Loop periodically drains buf into primary via d, as long as primary is
// healthy.
type Loop struct {
	d        *dataio.DataIO
	buf      *emergencybuffer.Buffer
	primary  provider.Provider
	interval time.Duration
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Loop. interval is the sync_interval between drain passes;
// pass 0 to use the default 10 seconds.
func New(d *dataio.DataIO, buf *emergencybuffer.Buffer, primary provider.Provider, interval time.Duration, logger *zap.Logger) *Loop {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		d:        d,
		buf:      buf,
		primary:  primary,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the loop's goroutine. Calling Start twice without an
// intervening Stop is a programmer error and leaks a goroutine.
func (l *Loop) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	go func() {
		defer close(l.done)
		l.run(ctx)
	}()
}

// Stop cancels the loop and waits for its current pass to finish, which
// completes within one interval since a pass never blocks past the
// per-entry DataIO timeout/retry budget.
func (l *Loop) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Loop) run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.runPass(ctx)
		}
	}
}

// RunOnce executes a single drain pass synchronously, outside the ticker.
// Exposed for callers (and tests) that need a deterministic pass rather than
// waiting on the configured interval.
func (l *Loop) RunOnce(ctx context.Context) {
	l.runPass(ctx)
}

// runPass drains the emergency buffer: if primary is unhealthy, skip this
// cycle entirely; otherwise replay every pending entry and purge whatever
// synced.
func (l *Loop) runPass(ctx context.Context) {
	if !l.primary.CheckHealth(ctx) {
		return
	}

	entries, err := l.buf.ListPending(ctx, batchSize)
	if err != nil {
		l.logger.Warn("background sync: list pending failed", zap.Error(err))
		return
	}

	for _, entry := range entries {
		select {
		case <-ctx.Done():
			return
		default:
		}
		l.syncEntry(ctx, entry)
	}

	if _, err := l.buf.PurgeSynced(ctx); err != nil {
		l.logger.Warn("background sync: purge synced failed", zap.Error(err))
	}
}

func (l *Loop) syncEntry(ctx context.Context, entry *emergencybuffer.Entry) {
	if err := l.d.WriteThroughPrimary(ctx, entry.Key, entry.Data); err != nil {
		l.logger.Debug("background sync: entry still cannot be written through",
			zap.String("key", entry.Key), zap.Error(err))
		return
	}

	if err := l.buf.MarkSynced(ctx, entry.ID); err != nil {
		l.logger.Warn("background sync: mark synced failed",
			zap.String("key", entry.Key), zap.Error(err))
	}
}
