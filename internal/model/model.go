package model

// Record is a single synthetic measurement produced by the upstream generator.
// Records are immutable once created.
type Record struct {
	// Epoch milliseconds at which the record was generated
	Timestamp int64 `json:"timestamp"`
	// Generated value in the range 0-100
	RandomValue int `json:"randomValue"`
	// Short hex token identifying the record
	HashValue string `json:"hashValue"`
}

// BufferEntry is a Record as stored in the relay buffer: the raw encoded
// payload together with the buffer-assigned stream position.  Positions are
// monotonically increasing within a stream.
type BufferEntry struct {
	Position string
	Payload  string
}

// AckDecision is returned by batch handlers to tell the broker adapter what to
// do with the messages that made up the batch.
type AckDecision int

const (
	// Ack indicates all records were processed and the messages can be acknowledged
	Ack AckDecision = iota
	// NackRequeue indicates processing failed transiently and the messages should be redelivered
	NackRequeue
	// NackDiscard indicates the messages are unprocessable and should be dead-lettered
	NackDiscard
)

func (d AckDecision) String() string {
	switch d {
	case Ack:
		return "ack"
	case NackRequeue:
		return "nack_requeue"
	case NackDiscard:
		return "nack_discard"
	default:
		return "unknown"
	}
}
