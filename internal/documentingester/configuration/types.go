package configuration

import (
	"github.com/dataflow-project/dataflow/internal/breaker"
	"github.com/dataflow-project/dataflow/internal/broker"
	"github.com/dataflow-project/dataflow/internal/rules"
)

type DocumentIngesterConfiguration struct {
	// Port on which prometheus metrics are served
	MetricsPort uint16
	// Broker subscription the raw record batches arrive on
	Pulsar broker.Config
	// Connection details of the mongo backing the document store
	Mongo MongoConfig
	// Policy deciding whether a record is nested into the latest aggregate
	// document rather than starting a new one
	Nesting rules.ThresholdRule
	// Default circuit breaker settings, applied to every protected resource
	Breaker breaker.Settings
	// Per-resource circuit breaker overrides keyed by resource name
	BreakerOverrides map[string]breaker.Settings
}

type MongoConfig struct {
	// Mongodb connection URI
	URI        string
	Database   string
	Collection string
}
