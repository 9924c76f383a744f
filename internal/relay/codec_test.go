package relay

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/dataflow-project/dataflow/internal/model"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	record := &model.Record{Timestamp: 1000, RandomValue: 80, HashValue: "50"}

	values, err := Encode(record)
	assert.NoError(t, err)
	payload, ok := values[dataKey].(string)
	assert.True(t, ok)

	decoded, err := Decode(model.BufferEntry{Position: "1-0", Payload: payload})
	assert.NoError(t, err)
	assert.Equal(t, record, decoded)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode(model.BufferEntry{Position: "1-0", Payload: "not json"})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestDecodeMissingPayload(t *testing.T) {
	_, err := Decode(model.BufferEntry{Position: "1-0"})
	assert.True(t, errors.Is(err, ErrDecode))
}
