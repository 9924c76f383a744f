package commit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataflow-project/dataflow/internal/model"
	"github.com/dataflow-project/dataflow/internal/relay"
)

// Exercises the full relational path below the broker: records appended to a
// real stream-backed buffer are committed in one batch and their positions
// acknowledged.
func TestCommitsRecordsFromRedisBackedBuffer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	buffer := relay.NewRedisRelayBuffer(client, "data:stream", "db-writers")
	require.NoError(t, buffer.EnsureGroup(ctx))

	_, err := buffer.Append(ctx, &model.Record{Timestamp: 1000, RandomValue: 80, HashValue: "50"})
	require.NoError(t, err)
	_, err = buffer.Append(ctx, &model.Record{Timestamp: 1001, RandomValue: 95, HashValue: "9A"})
	require.NoError(t, err)

	store := &fakeStore{}
	engine := NewEngine(buffer, store, testRegistry(), testMetrics, testConfig())

	require.NoError(t, engine.Tick(ctx))

	require.Len(t, store.batches, 1)
	rows := store.batches[0]
	require.Len(t, rows, 2)
	assert.Equal(t, time.UnixMilli(1000), rows[0].Timestamp)
	assert.Equal(t, "9A", rows[1].HashValue)

	pending, err := buffer.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)

	// A second tick finds nothing new
	require.NoError(t, engine.Tick(ctx))
	assert.Len(t, store.batches, 1)
}

// A stream entry that cannot be decoded must not pin the pending set: pending
// entries are redelivered before new ones, so an unacknowledged poison entry
// would be re-read on every tick and later records would never be committed.
func TestPoisonEntryDoesNotStarveLaterRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	buffer := relay.NewRedisRelayBuffer(client, "data:stream", "db-writers")
	require.NoError(t, buffer.EnsureGroup(ctx))

	_, err := client.XAdd(&redis.XAddArgs{
		Stream: "data:stream",
		Values: map[string]interface{}{"message": "not json"},
	}).Result()
	require.NoError(t, err)

	store := &fakeStore{}
	engine := NewEngine(buffer, store, testRegistry(), testMetrics, testConfig())

	require.NoError(t, engine.Tick(ctx))
	assert.Empty(t, store.batches)

	_, err = buffer.Append(ctx, &model.Record{Timestamp: 1000, RandomValue: 80, HashValue: "50"})
	require.NoError(t, err)

	require.NoError(t, engine.Tick(ctx))
	require.Len(t, store.batches, 1)
	require.Len(t, store.batches[0], 1)
	assert.Equal(t, "50", store.batches[0][0].HashValue)

	pending, err := buffer.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}
