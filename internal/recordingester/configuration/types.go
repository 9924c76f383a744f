package configuration

import (
	"time"

	"github.com/go-redis/redis"

	"github.com/dataflow-project/dataflow/internal/breaker"
	"github.com/dataflow-project/dataflow/internal/broker"
)

type RecordIngesterConfiguration struct {
	// Port on which prometheus metrics are served
	MetricsPort uint16
	// Broker subscription the raw record batches arrive on
	Pulsar broker.Config
	// Connection details of the redis backing the relay buffer
	Redis redis.UniversalOptions
	// Connection details of the postgres database rows are committed to
	Postgres PostgresConfig
	// Relay stream and consumer group names
	Relay RelayConfig
	// Batch commit schedule
	Commit CommitConfig
	// Default circuit breaker settings, applied to every protected resource
	Breaker breaker.Settings
	// Per-resource circuit breaker overrides keyed by resource name
	BreakerOverrides map[string]breaker.Settings
}

type PostgresConfig struct {
	// libpq-style key/value connection parameters
	Connection     map[string]string
	MaxConnections int32
}

type RelayConfig struct {
	Stream string
	Group  string
}

type CommitConfig struct {
	// Time between batch commit ticks
	Interval time.Duration
	// Maximum entries drained from the relay buffer per tick
	BatchSize int64
	// How long a read blocks waiting for new entries before returning empty
	ReadBlock time.Duration
	// Bounded retry on buffer reads before the tick gives up
	MaxReadAttempts uint
}
