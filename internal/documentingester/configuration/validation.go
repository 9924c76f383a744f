package configuration

import (
	"github.com/pkg/errors"

	"github.com/dataflow-project/dataflow/internal/rules"
)

func (c *DocumentIngesterConfiguration) Validate() error {
	if c.Mongo.URI == "" {
		return errors.New("config error: mongo uri must be set")
	}
	if c.Mongo.Database == "" {
		return errors.New("config error: mongo database must be set")
	}
	if c.Mongo.Collection == "" {
		return errors.New("config error: mongo collection must be set")
	}
	// An absent nesting block falls back to the stock rule, but a partially
	// filled one is rejected: an unknown field or operator never matches and
	// would silently stop all nesting
	if c.Nesting != (rules.ThresholdRule{}) {
		switch c.Nesting.Field {
		case rules.FieldHash, rules.FieldValue:
		default:
			return errors.Errorf("config error: unknown nesting rule field %q", c.Nesting.Field)
		}
		switch c.Nesting.Operator {
		case rules.GreaterThan, rules.LessThan, rules.Equals:
		default:
			return errors.Errorf("config error: unknown nesting rule operator %q", c.Nesting.Operator)
		}
	}
	return nil
}
