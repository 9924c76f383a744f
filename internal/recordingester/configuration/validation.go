package configuration

import "github.com/pkg/errors"

func (c *RecordIngesterConfiguration) Validate() error {
	if c.Relay.Stream == "" {
		return errors.New("config error: relay stream name must be set")
	}
	if c.Relay.Group == "" {
		return errors.New("config error: relay consumer group must be set")
	}
	if c.Commit.Interval <= 0 {
		return errors.New("config error: commit interval must be positive")
	}
	if c.Commit.BatchSize <= 0 {
		return errors.New("config error: commit batch size must be positive")
	}
	if len(c.Postgres.Connection) == 0 {
		return errors.New("config error: postgres connection parameters must be set")
	}
	return nil
}
