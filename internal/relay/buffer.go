package relay

import (
	"context"
	"strings"
	"time"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dataflow-project/dataflow/internal/model"
)

// ErrBufferUnavailable indicates that the storage backing the relay buffer
// could not be reached.  Circuit breakers treat it as a recordable failure.
var ErrBufferUnavailable = errors.New("relay buffer unavailable")

// BreakerName identifies the relay buffer to the circuit breaker registry.
const BreakerName = "relay-buffer"

// RelayBuffer is a durable append-only log with named consumer-group
// semantics.  Entries delivered by ReadBatch stay in the group's pending set
// until they are acknowledged.
type RelayBuffer interface {
	// Append durably stores a record and returns its assigned stream position
	Append(ctx context.Context, record *model.Record) (string, error)
	// EnsureGroup idempotently creates the consumer-group cursor at the stream origin
	EnsureGroup(ctx context.Context) error
	// ReadBatch claims up to maxCount entries for the given consumer, blocking up
	// to block for new entries.  A timeout yields an empty slice, never an error.
	ReadBatch(ctx context.Context, consumer string, maxCount int64, block time.Duration) ([]model.BufferEntry, error)
	// Acknowledge removes positions from the group's pending set; already
	// acknowledged positions are a no-op
	Acknowledge(ctx context.Context, positions ...string) error
	// Pending summarises the group's delivered-but-unacknowledged entries so an
	// external recovery sweep can be built on top
	Pending(ctx context.Context) (*PendingSummary, error)
}

// PendingSummary describes the delivered-but-unacknowledged entries of a
// consumer group.
type PendingSummary struct {
	Count     int64
	Lowest    string
	Highest   string
	Consumers map[string]int64
}

// RedisRelayBuffer implements RelayBuffer on a Redis stream.  Claim-on-read
// atomicity comes from XREADGROUP, so the buffer is safe for concurrent
// appenders and concurrent readers within the same group.
type RedisRelayBuffer struct {
	db     redis.UniversalClient
	stream string
	group  string
}

func NewRedisRelayBuffer(db redis.UniversalClient, stream string, group string) *RedisRelayBuffer {
	return &RedisRelayBuffer{db: db, stream: stream, group: group}
}

func (b *RedisRelayBuffer) Append(ctx context.Context, record *model.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	values, err := Encode(record)
	if err != nil {
		return "", err
	}
	position, err := b.db.XAdd(&redis.XAddArgs{
		Stream: b.stream,
		Values: values,
	}).Result()
	if err != nil {
		return "", errors.Wrapf(ErrBufferUnavailable, "error appending to stream %s: %v", b.stream, err)
	}
	return position, nil
}

func (b *RedisRelayBuffer) EnsureGroup(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.XGroupCreateMkStream(b.stream, b.group, "0").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			log.Infof("Consumer group %s already exists on stream %s", b.group, b.stream)
			return nil
		}
		return errors.Wrapf(ErrBufferUnavailable, "error creating consumer group %s: %v", b.group, err)
	}
	log.Infof("Created consumer group %s on stream %s", b.group, b.stream)
	return nil
}

// ReadBatch first re-claims any entries already pending for this consumer
// (e.g. a batch whose commit failed on the previous tick) and only asks for
// new entries once the consumer's pending set is empty.
func (b *RedisRelayBuffer) ReadBatch(ctx context.Context, consumer string, maxCount int64, block time.Duration) ([]model.BufferEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pending, err := b.read(consumer, "0", maxCount, -1)
	if err != nil {
		return nil, err
	}
	if len(pending) > 0 {
		log.Debugf("Re-delivering %d pending entries to consumer %s", len(pending), consumer)
		return pending, nil
	}
	if block <= 0 {
		block = -1
	}
	return b.read(consumer, ">", maxCount, block)
}

func (b *RedisRelayBuffer) read(consumer string, offset string, maxCount int64, block time.Duration) ([]model.BufferEntry, error) {
	streams, err := b.db.XReadGroup(&redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: consumer,
		Streams:  []string{b.stream, offset},
		Count:    maxCount,
		Block:    block,
	}).Result()
	if err == redis.Nil {
		return []model.BufferEntry{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrBufferUnavailable, "error reading stream %s as %s: %v", b.stream, consumer, err)
	}
	entries := []model.BufferEntry{}
	for _, stream := range streams {
		for _, message := range stream.Messages {
			entries = append(entries, model.BufferEntry{
				Position: message.ID,
				Payload:  payloadOf(message),
			})
		}
	}
	return entries, nil
}

func payloadOf(message redis.XMessage) string {
	if raw, ok := message.Values[dataKey]; ok {
		if payload, ok := raw.(string); ok {
			return payload
		}
	}
	return ""
}

func (b *RedisRelayBuffer) Acknowledge(ctx context.Context, positions ...string) error {
	if len(positions) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.db.XAck(b.stream, b.group, positions...).Err(); err != nil {
		return errors.Wrapf(ErrBufferUnavailable, "error acknowledging %d entries on stream %s: %v", len(positions), b.stream, err)
	}
	return nil
}

func (b *RedisRelayBuffer) Pending(ctx context.Context) (*PendingSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, err := b.db.XPending(b.stream, b.group).Result()
	if err != nil {
		return nil, errors.Wrapf(ErrBufferUnavailable, "error reading pending set for group %s: %v", b.group, err)
	}
	return &PendingSummary{
		Count:     result.Count,
		Lowest:    result.Lower,
		Highest:   result.Higher,
		Consumers: result.Consumers,
	}, nil
}
