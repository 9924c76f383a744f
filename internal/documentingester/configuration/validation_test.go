package configuration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dataflow-project/dataflow/internal/rules"
)

func validConfig() DocumentIngesterConfiguration {
	return DocumentIngesterConfiguration{
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "dataflow",
			Collection: "documents",
		},
	}
}

func TestValidateAcceptsAbsentNestingRule(t *testing.T) {
	config := validConfig()
	assert.NoError(t, config.Validate())
}

func TestValidateAcceptsCompleteNestingRule(t *testing.T) {
	config := validConfig()
	config.Nesting = rules.ThresholdRule{Field: rules.FieldValue, Operator: rules.LessThan, Bound: 10}
	assert.NoError(t, config.Validate())
}

func TestValidateRejectsNestingRuleWithoutField(t *testing.T) {
	config := validConfig()
	config.Nesting = rules.ThresholdRule{Bound: 0x99}
	assert.Error(t, config.Validate())
}

func TestValidateRejectsNestingRuleWithUnknownOperator(t *testing.T) {
	config := validConfig()
	config.Nesting = rules.ThresholdRule{Field: rules.FieldHash, Operator: ">=", Bound: 0x99}
	assert.Error(t, config.Validate())
}

func TestValidateRejectsMissingMongoURI(t *testing.T) {
	config := validConfig()
	config.Mongo.URI = ""
	assert.Error(t, config.Validate())
}
