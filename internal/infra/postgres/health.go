// Package postgres provides PostgreSQL database infrastructure.
package postgres

import "context"

// DBHealthChecker checks database health. kafka.KafkaHealthChecker and
// rabbitmq.RabbitMQHealthChecker adapt to the same shape so an operator's
// health-check wiring can treat the primary store and both brokers uniformly.
// *ResilientPool satisfies it directly; *DatabaseHealthChecker does not (it
// exposes Name and CheckHealth over a pool that does).
type DBHealthChecker interface {
	Ping(ctx context.Context) error
}
