package commit

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dataflow-project/dataflow/internal/breaker"
	"github.com/dataflow-project/dataflow/internal/common/ingest/metrics"
	"github.com/dataflow-project/dataflow/internal/model"
	"github.com/dataflow-project/dataflow/internal/recordingester/configuration"
	rowmodel "github.com/dataflow-project/dataflow/internal/recordingester/model"
	"github.com/dataflow-project/dataflow/internal/recordingester/recorddb"
	"github.com/dataflow-project/dataflow/internal/relay"
)

// Engine drains the relay buffer into the relational store, one bounded batch
// per tick.  Positions are acknowledged only after the transaction commits, so
// a failed batch stays pending and is redelivered on a later tick
// (at-least-once commit).
type Engine struct {
	buffer       relay.RelayBuffer
	store        recorddb.RecordStore
	breakers     *breaker.Registry
	m            *metrics.Metrics
	consumer     string
	batchSize    int64
	readBlock    time.Duration
	readAttempts uint
}

func NewEngine(
	buffer relay.RelayBuffer,
	store recorddb.RecordStore,
	breakers *breaker.Registry,
	m *metrics.Metrics,
	config configuration.CommitConfig,
) *Engine {
	readBlock := config.ReadBlock
	if readBlock <= 0 {
		readBlock = 100 * time.Millisecond
	}
	readAttempts := config.MaxReadAttempts
	if readAttempts == 0 {
		readAttempts = 3
	}
	return &Engine{
		buffer:       buffer,
		store:        store,
		breakers:     breakers,
		m:            m,
		consumer:     uuid.New().String(),
		batchSize:    config.BatchSize,
		readBlock:    readBlock,
		readAttempts: readAttempts,
	}
}

// Tick processes a single batch.  All errors are returned to the scheduler
// for logging; none of them stop the next tick from running.
func (e *Engine) Tick(ctx context.Context) error {
	entries, err := e.readBatch(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	rows := e.toRows(entries)
	if len(rows) == 0 {
		// Nothing decodable in the batch.  The poison entries must still be
		// acknowledged: pending entries are redelivered ahead of new ones, so
		// leaving them would starve the stream on every subsequent tick.
		if err := e.acknowledge(ctx, entries); err != nil {
			log.WithError(err).Errorf("Failed to acknowledge %d undecodable entries", len(entries))
		}
		return nil
	}

	err = e.breakers.Get(recorddb.BreakerName).Execute(func() error {
		return e.store.InsertBatch(ctx, rows)
	})
	if err != nil {
		if !errors.Is(err, breaker.ErrOpen) {
			e.m.RecordStoreError(metrics.StoreOperationInsert)
		}
		return errors.WithMessagef(err, "batch of %d entries left pending for redelivery", len(entries))
	}
	e.m.RecordRowsCommitted(len(rows))

	if err := e.acknowledge(ctx, entries); err != nil {
		// The relational commit is the source of truth; an acknowledge
		// failure is logged but never rolls it back.  The batch may be
		// redelivered and committed again.
		log.WithError(err).Errorf("Committed %d rows but failed to acknowledge their positions", len(rows))
		return nil
	}
	log.Infof("Committed batch of %d records from relay buffer to database", len(rows))
	return nil
}

func (e *Engine) acknowledge(ctx context.Context, entries []model.BufferEntry) error {
	positions := make([]string, len(entries))
	for i, entry := range entries {
		positions[i] = entry.Position
	}
	err := e.breakers.Get(relay.BreakerName).Execute(func() error {
		return e.buffer.Acknowledge(ctx, positions...)
	})
	if err != nil && !errors.Is(err, breaker.ErrOpen) {
		e.m.RecordBufferError(metrics.StoreOperationAcknowledge)
	}
	return err
}

func (e *Engine) readBatch(ctx context.Context) ([]model.BufferEntry, error) {
	var entries []model.BufferEntry
	err := e.breakers.Get(relay.BreakerName).Execute(func() error {
		return retry.Do(
			func() error {
				var err error
				entries, err = e.buffer.ReadBatch(ctx, e.consumer, e.batchSize, e.readBlock)
				return err
			},
			retry.Attempts(e.readAttempts),
			retry.LastErrorOnly(true),
		)
	})
	if err != nil {
		if !errors.Is(err, breaker.ErrOpen) {
			e.m.RecordBufferError(metrics.StoreOperationRead)
		}
		return nil, err
	}
	return entries, nil
}

// toRows decodes buffer entries into relational rows.  A malformed entry is
// dropped and counted; it must not poison an otherwise healthy batch.
func (e *Engine) toRows(entries []model.BufferEntry) []rowmodel.RelationalRow {
	rows := make([]rowmodel.RelationalRow, 0, len(entries))
	for _, entry := range entries {
		record, err := relay.Decode(entry)
		if err != nil {
			e.m.RecordDecodeError()
			log.WithError(err).Errorf("Dropping undecodable buffer entry %s", entry.Position)
			continue
		}
		rows = append(rows, rowmodel.RelationalRow{
			Timestamp:   time.UnixMilli(record.Timestamp),
			RandomValue: record.RandomValue,
			HashValue:   record.HashValue,
		})
	}
	return rows
}
