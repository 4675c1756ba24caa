// Package main starts the concurrency core as a standalone process: the
// priority scheduler, resilient DataIO, priority message bus, background
// sync loop, and lifecycle hook registry all run for the lifetime of the
// Fx application, shutting down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iruldev/concurrency-core/internal/core/bus"
	"github.com/iruldev/concurrency-core/internal/core/scheduler"
	fxmodule "github.com/iruldev/concurrency-core/internal/infra/fx"
	"github.com/iruldev/concurrency-core/internal/hooks"
)

func main() {
	app := fx.New(
		fxmodule.Module,
		fx.Invoke(run),
		fx.StopTimeout(60*time.Second),
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	<-app.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := app.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// run fires the ON_SERVICE_INIT lifecycle event once every core component is
// wired and the scheduler/bus are ready to accept work. It takes no other
// action: the concurrency core has no external transport of its own, so the
// process simply stays alive serving whatever embeds or calls into it until
// a shutdown signal arrives.
func run(
	lc fx.Lifecycle,
	s *scheduler.Scheduler,
	b *bus.Bus,
	hookRegistry *hooks.Registry,
	logger *zap.Logger,
	slogger *slog.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			fxmodule.ServiceStarted("concurrency-core", hookRegistry)
			logger.Info("concurrency core started")
			slogger.Info("concurrency core ready")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("concurrency core stopping")
			return nil
		},
	})
}
