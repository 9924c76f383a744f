package broker

import "time"

// Config describes a single broker subscription.
type Config struct {
	URL              string
	Topic            string
	SubscriptionName string
	// How long a single receive waits before giving up and flushing the batch
	ReceiveTimeout time.Duration
	// How long to back off after a broker error before receiving again
	BackoffTime time.Duration
	// Maximum number of messages delivered to the handler in one batch
	BatchSize int
	// Deliveries after which a failing message is dead-lettered instead of requeued
	MaxRedeliveries uint32
}

func (c Config) WithDefaults() Config {
	if c.ReceiveTimeout <= 0 {
		c.ReceiveTimeout = 5 * time.Second
	}
	if c.BackoffTime <= 0 {
		c.BackoffTime = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxRedeliveries == 0 {
		c.MaxRedeliveries = 3
	}
	return c
}
