// Package fxmodule wires the concurrency core's components with Uber Fx:
// configuration, logging/metrics, the resilience primitives, the storage
// providers and their circuit breakers, the resilient DataIO policy engine,
// the background sync loop, the priority scheduler, the priority message
// bus, and the lifecycle hook registry.
//
// Usage in main.go:
//
//	app := fx.New(
//	    fxmodule.Module,
//	    fx.Invoke(run),
//	)
//	app.Run()
package fxmodule

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/iruldev/concurrency-core/internal/core/bgsync"
	"github.com/iruldev/concurrency-core/internal/core/breaker"
	"github.com/iruldev/concurrency-core/internal/core/bridge"
	"github.com/iruldev/concurrency-core/internal/core/bus"
	"github.com/iruldev/concurrency-core/internal/core/dataio"
	"github.com/iruldev/concurrency-core/internal/core/provider"
	"github.com/iruldev/concurrency-core/internal/core/scheduler"
	"github.com/iruldev/concurrency-core/internal/hooks"
	"github.com/iruldev/concurrency-core/internal/infra/config"
	"github.com/iruldev/concurrency-core/internal/infra/emergencybuffer"
	"github.com/iruldev/concurrency-core/internal/infra/kafka"
	"github.com/iruldev/concurrency-core/internal/infra/observability"
	"github.com/iruldev/concurrency-core/internal/infra/postgres"
	"github.com/iruldev/concurrency-core/internal/infra/rabbitmq"
	redisinfra "github.com/iruldev/concurrency-core/internal/infra/redis"
	"github.com/iruldev/concurrency-core/internal/infra/resilience"
	"github.com/iruldev/concurrency-core/internal/intent"
	"github.com/iruldev/concurrency-core/internal/mask"
	"github.com/iruldev/concurrency-core/internal/sysstatus"
)

// Module provides every dependency the concurrency core needs. Compose it
// with fx.Invoke(run) in cmd/server/main.go to build a runnable process.
var Module = fx.Options(
	ConfigModule,
	ObservabilityModule,
	ResilienceModule,
	ProviderModule,
	CoreModule,
)

// ConfigModule loads environment-based configuration.
var ConfigModule = fx.Options(
	fx.Provide(config.Load),
)

// ObservabilityModule provides the two loggers the core uses (slog for
// ambient/config-surface logging, zap for the scheduler/bus/dataio hot path)
// and the process's single Prometheus registry.
var ObservabilityModule = fx.Options(
	fx.Provide(observability.NewLogger),
	fx.Invoke(func(logger *slog.Logger) {
		slog.SetDefault(logger)
	}),
	fx.Provide(observability.NewZapLogger),
	fx.Provide(observability.NewRegistry),
)

// ResilienceModule provides the circuit breaker, retry, timeout, and
// bulkhead primitives the resilient DataIO path composes around every
// provider call.
var ResilienceModule = fx.Options(
	fx.Provide(provideResilienceConfig),
	fx.Provide(provideCircuitBreakerMetrics),
	fx.Provide(provideBreakerTable),
	fx.Provide(provideRetryMetrics),
	fx.Provide(provideRetrier),
	fx.Provide(provideTimeoutMetrics),
	fx.Provide(providePrimaryTimeout),
	fx.Provide(provideBulkheadMetrics),
	fx.Provide(provideBulkhead),
	fx.Provide(provideShutdownMetrics),
	fx.Provide(provideSchedulerShutdownConfig),
)

func provideResilienceConfig(cfg *config.Config) resilience.ResilienceConfig {
	return resilience.NewResilienceConfig(cfg)
}

func provideCircuitBreakerMetrics(registry *prometheus.Registry) *resilience.CircuitBreakerMetrics {
	return resilience.NewCircuitBreakerMetrics(registry)
}

// provideBreakerTable builds the per-provider circuit breaker table the
// resilient DataIO path consults before every write/read. Every provider's
// breaker shares the same failure_threshold/recovery_timeout configuration,
// surfaced through BREAKER_FAILURE_THRESHOLD and BREAKER_RECOVERY_TIMEOUT.
func provideBreakerTable(cfg *config.Config, metrics *resilience.CircuitBreakerMetrics, logger *slog.Logger) *breaker.Table {
	breakerCfg := resilience.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         cfg.BreakerRecoveryTimeout,
		Timeout:          cfg.BreakerRecoveryTimeout,
		FailureThreshold: cfg.BreakerFailureThreshold,
	}
	return breaker.NewTable(breakerCfg,
		resilience.WithMetrics(metrics),
		resilience.WithLogger(logger),
	)
}

func provideRetryMetrics(registry *prometheus.Registry) *resilience.RetryMetrics {
	return resilience.NewRetryMetrics(registry)
}

func provideRetrier(resCfg resilience.ResilienceConfig, metrics *resilience.RetryMetrics, logger *slog.Logger) resilience.Retrier {
	return resilience.NewRetrier("dataio-primary", resCfg.Retry,
		resilience.WithRetryMetrics(metrics),
		resilience.WithRetryLogger(logger),
	)
}

func provideTimeoutMetrics(registry *prometheus.Registry) *resilience.TimeoutMetrics {
	return resilience.NewTimeoutMetrics(registry)
}

func providePrimaryTimeout(cfg *config.Config, metrics *resilience.TimeoutMetrics, logger *slog.Logger) resilience.Timeout {
	return resilience.NewTimeout("dataio-primary", cfg.TimeoutPrimaryProvider,
		resilience.WithTimeoutMetrics(metrics),
		resilience.WithTimeoutLogger(logger),
	)
}

func provideBulkheadMetrics(registry *prometheus.Registry) *resilience.BulkheadMetrics {
	return resilience.NewBulkheadMetrics(registry)
}

func provideBulkhead(cfg *config.Config, metrics *resilience.BulkheadMetrics, logger *slog.Logger) resilience.Bulkhead {
	bhCfg := resilience.BulkheadConfig{
		MaxConcurrent: cfg.BulkheadMaxConcurrent,
		MaxWaiting:    cfg.BulkheadMaxWaiting,
	}
	return resilience.NewBulkhead("dataio-primary", bhCfg,
		resilience.WithBulkheadMetrics(metrics),
		resilience.WithBulkheadLogger(logger),
	)
}

func provideShutdownMetrics(registry *prometheus.Registry) *resilience.ShutdownMetrics {
	return resilience.NewShutdownMetrics(registry)
}

func provideSchedulerShutdownConfig(cfg *config.Config) resilience.ShutdownConfig {
	return resilience.ShutdownConfig{
		DrainPeriod: cfg.ShutdownDrainPeriod,
		GracePeriod: cfg.ShutdownGracePeriod,
	}
}

// ProviderModule provides the primary (Postgres) and fallback (Redis)
// storage providers, plus the durable emergency buffer they fall through to.
var ProviderModule = fx.Options(
	fx.Provide(providePostgresPool),
	fx.Provide(providePrimaryProvider),
	fx.Provide(provideRedisClient),
	fx.Provide(provideFallbackProvider),
	fx.Provide(provideEmergencyBuffer),
	fx.Invoke(registerPostgresPoolMetrics),
)

// registerPostgresPoolMetrics exposes the primary pool's connection
// occupancy (total/in-use/idle/max) alongside the rest of the core's
// Prometheus surface, so a saturated pool is visible the same way a tripped
// breaker or a full scheduler queue is.
func registerPostgresPoolMetrics(registry *prometheus.Registry, pool *postgres.ResilientPool, logger *slog.Logger) error {
	return registry.Register(postgres.NewDBMetrics(pool, logger))
}

func providePostgresPool(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) *postgres.ResilientPool {
	poolCfg := postgres.PoolConfig{
		MaxConns:        cfg.DBPoolMaxConns,
		MinConns:        cfg.DBPoolMinConns,
		MaxConnLifetime: cfg.DBPoolMaxLifetime,
	}
	pool := postgres.NewResilientPool(context.Background(), cfg.DatabaseURL, poolCfg, cfg.IgnoreDBStartupError, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			pool.Close()
			return nil
		},
	})
	return pool
}

func providePrimaryProvider(pool *postgres.ResilientPool) provider.Provider {
	return postgres.NewProvider("postgres-primary", pool)
}

func provideRedisClient(lc fx.Lifecycle, cfg *config.Config) (*redisinfra.Client, error) {
	client, err := redisinfra.NewClient(cfg.Redis())
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func provideFallbackProvider(client *redisinfra.Client) provider.Provider {
	return redisinfra.NewProvider("redis-fallback", client)
}

func provideEmergencyBuffer(lc fx.Lifecycle, cfg *config.Config) (*emergencybuffer.Buffer, error) {
	buf, err := emergencybuffer.Open(context.Background(), cfg.EmergencyBufferPath)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return buf.Close()
		},
	})
	return buf, nil
}

// CoreModule provides the concurrency core itself: intent registry, masker,
// system status sampler, lifecycle hook registry, outbound bridge, resilient
// DataIO, background sync loop, priority scheduler, and priority message bus.
var CoreModule = fx.Options(
	fx.Provide(provideIntentRegistry),
	fx.Provide(provideMasker),
	fx.Provide(provideSysStatusSampler),
	fx.Provide(provideHookRegistry),
	fx.Provide(provideBridge),
	fx.Provide(provideDataIO),
	fx.Invoke(registerBackgroundSync),
	fx.Provide(provideSchedulerConfig),
	fx.Provide(provideScheduler),
	fx.Provide(provideBusConfig),
	fx.Provide(provideBus),
)

func provideIntentRegistry() *intent.Registry {
	return intent.NewRegistry()
}

func provideMasker(cfg *config.Config) *mask.Masker {
	return mask.New(cfg.SensitivePatterns...)
}

func provideSysStatusSampler() *sysstatus.Sampler {
	return sysstatus.New(sysstatus.DefaultThresholds())
}

func provideHookRegistry(logger *zap.Logger) *hooks.Registry {
	return hooks.New(logger)
}

// provideBridge picks the outbound Bridge the message bus mirrors dispatched
// messages to. Kafka takes precedence when both are enabled; neither
// configured means every message is mirrored to a NopBridge.
func provideBridge(cfg *config.Config, logger observability.Logger) (bridge.Bridge, error) {
	kafkaCfg := cfg.Kafka()
	if kafkaCfg.IsEnabled() {
		return kafka.NewKafkaPublisher(&kafkaCfg, logger)
	}
	rabbitCfg := cfg.RabbitMQ()
	if rabbitCfg.IsEnabled() {
		return rabbitmq.NewRabbitMQPublisher(&rabbitCfg, logger)
	}
	return bridge.NewNopBridge(), nil
}

func provideDataIO(
	primary provider.Provider,
	fallback provider.Provider,
	buf *emergencybuffer.Buffer,
	breakers *breaker.Table,
	sys *sysstatus.Sampler,
	masker *mask.Masker,
	intents *intent.Registry,
	hookRegistry *hooks.Registry,
	primaryTimeout resilience.Timeout,
	retrier resilience.Retrier,
	bulkhead resilience.Bulkhead,
	logger *zap.Logger,
) *dataio.DataIO {
	return dataio.New(primary, fallback, buf, breakers, sys, masker, intents, hookRegistry, primaryTimeout, retrier, bulkhead, logger)
}

// registerBackgroundSync launches the emergency-buffer drain loop for the
// lifetime of the process, stopping it within one sync interval when the
// Fx app shuts down.
func registerBackgroundSync(
	lc fx.Lifecycle,
	cfg *config.Config,
	d *dataio.DataIO,
	buf *emergencybuffer.Buffer,
	primary provider.Provider,
	logger *zap.Logger,
) {
	loop := bgsync.New(d, buf, primary, cfg.SyncInterval, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			loop.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			loop.Stop()
			return nil
		},
	})
}

func provideSchedulerConfig(cfg *config.Config, shutdownCfg resilience.ShutdownConfig) scheduler.Config {
	return scheduler.Config{
		High: scheduler.Limits{
			QueueCapacity: cfg.QueueLimitHigh,
			Concurrency:   cfg.ConcurrencyLimitHigh,
		},
		Medium: scheduler.Limits{
			QueueCapacity: cfg.QueueLimitMedium,
			Concurrency:   cfg.ConcurrencyLimitMedium,
		},
		Low: scheduler.Limits{
			QueueCapacity: cfg.QueueLimitLow,
			Concurrency:   cfg.ConcurrencyLimitLow,
		},
		Shutdown: shutdownCfg,
	}
}

func provideScheduler(lc fx.Lifecycle, cfg scheduler.Config, registry *prometheus.Registry, logger *zap.Logger) *scheduler.Scheduler {
	s := scheduler.New(cfg, registry, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return s.Shutdown(ctx)
		},
	})
	return s
}

func provideBusConfig() bus.Config {
	return bus.DefaultConfig()
}

func provideBus(lc fx.Lifecycle, cfg bus.Config, out bridge.Bridge, logger *zap.Logger) *bus.Bus {
	b := bus.New(cfg, out, logger)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			b.Close()
			return nil
		},
	})
	return b
}

// ServiceStarted fires ON_SERVICE_INIT once every core component is wired,
// so observers registered by callers before app.Run see a single consistent
// startup event instead of one per subsystem.
func ServiceStarted(serviceName string, hookRegistry *hooks.Registry) {
	hookRegistry.TriggerEvent(context.Background(), hooks.EventContext{
		Type:        hooks.OnServiceInit,
		Timestamp:   time.Now().UTC(),
		ServiceName: serviceName,
	})
}
