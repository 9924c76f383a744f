package rules

import (
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/dataflow-project/dataflow/internal/model"
)

// The original system evaluated merge policies through a generic rule engine.
// Here the configurable surface is a closed set of threshold rules over record
// fields, evaluated by a small interpreter.

type Field string

const (
	// FieldHash compares the record's hash token parsed as a base-16 integer
	FieldHash Field = "hash"
	// FieldValue compares the record's generated value
	FieldValue Field = "value"
)

type Operator string

const (
	GreaterThan Operator = ">"
	LessThan    Operator = "<"
	Equals      Operator = "=="
)

// Rule decides whether a record matches a policy.
type Rule interface {
	Evaluate(record *model.Record) bool
}

// ThresholdRule compares a single record field against a fixed bound.
type ThresholdRule struct {
	Field    Field
	Operator Operator
	Bound    int64
}

// DefaultNestingRule reproduces the stock merge policy: records whose hash
// exceeds 0x99 are nested into the current aggregate document.
func DefaultNestingRule() ThresholdRule {
	return ThresholdRule{Field: FieldHash, Operator: GreaterThan, Bound: 0x99}
}

func (r ThresholdRule) Evaluate(record *model.Record) bool {
	value, ok := r.fieldValue(record)
	if !ok {
		return false
	}
	switch r.Operator {
	case GreaterThan:
		return value > r.Bound
	case LessThan:
		return value < r.Bound
	case Equals:
		return value == r.Bound
	default:
		log.Errorf("Unknown rule operator %q", r.Operator)
		return false
	}
}

func (r ThresholdRule) fieldValue(record *model.Record) (int64, bool) {
	switch r.Field {
	case FieldHash:
		value, err := strconv.ParseInt(record.HashValue, 16, 64)
		if err != nil {
			// An unparsable hash means the rule does not match, not a failure
			log.Errorf("Invalid hash value: %s", record.HashValue)
			return 0, false
		}
		return value, true
	case FieldValue:
		return int64(record.RandomValue), true
	default:
		log.Errorf("Unknown rule field %q", r.Field)
		return 0, false
	}
}
