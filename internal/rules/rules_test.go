package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dataflow-project/dataflow/internal/model"
)

func TestDefaultNestingRule(t *testing.T) {
	rule := DefaultNestingRule()

	// 0x9A = 154 > 0x99
	assert.True(t, rule.Evaluate(&model.Record{HashValue: "9A"}))
	// 0x50 = 80
	assert.False(t, rule.Evaluate(&model.Record{HashValue: "50"}))
	// the bound itself does not match
	assert.False(t, rule.Evaluate(&model.Record{HashValue: "99"}))
}

func TestMalformedHashNeverMatches(t *testing.T) {
	rule := DefaultNestingRule()
	assert.False(t, rule.Evaluate(&model.Record{HashValue: "not-hex"}))
	assert.False(t, rule.Evaluate(&model.Record{HashValue: ""}))
}

func TestValueRules(t *testing.T) {
	record := &model.Record{RandomValue: 80}

	assert.True(t, ThresholdRule{Field: FieldValue, Operator: GreaterThan, Bound: 50}.Evaluate(record))
	assert.True(t, ThresholdRule{Field: FieldValue, Operator: LessThan, Bound: 90}.Evaluate(record))
	assert.True(t, ThresholdRule{Field: FieldValue, Operator: Equals, Bound: 80}.Evaluate(record))
	assert.False(t, ThresholdRule{Field: FieldValue, Operator: GreaterThan, Bound: 80}.Evaluate(record))
}

func TestUnknownFieldOrOperator(t *testing.T) {
	record := &model.Record{HashValue: "FF", RandomValue: 10}

	assert.False(t, ThresholdRule{Field: "bogus", Operator: GreaterThan, Bound: 0}.Evaluate(record))
	assert.False(t, ThresholdRule{Field: FieldHash, Operator: "~=", Bound: 0}.Evaluate(record))
}
