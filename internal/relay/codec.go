package relay

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/dataflow-project/dataflow/internal/model"
)

// Each stream entry carries a single field so that the buffer itself stays
// schema agnostic.  The field value is the JSON encoded record.
const dataKey = "message"

// ErrDecode indicates a stream entry whose payload could not be decoded into a
// Record.  Such entries are dropped by consumers rather than failing the batch
// they arrived in.
var ErrDecode = errors.New("malformed record payload")

// Encode converts a record into the stream field map used on the wire.
func Encode(record *model.Record) (map[string]interface{}, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "error encoding record")
	}
	return map[string]interface{}{dataKey: string(payload)}, nil
}

// Decode parses the JSON payload of a buffer entry back into a Record.
// Failures are reported as ErrDecode so callers can distinguish a poison entry
// from an unavailable buffer.
func Decode(entry model.BufferEntry) (*model.Record, error) {
	if entry.Payload == "" {
		return nil, errors.Wrapf(ErrDecode, "entry %s has no %s field", entry.Position, dataKey)
	}
	var record model.Record
	if err := json.Unmarshal([]byte(entry.Payload), &record); err != nil {
		return nil, errors.Wrapf(ErrDecode, "entry %s: %v", entry.Position, err)
	}
	return &record, nil
}
