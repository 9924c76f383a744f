package load

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dataflow-project/dataflow/internal/breaker"
	"github.com/dataflow-project/dataflow/internal/common/ingest/metrics"
	"github.com/dataflow-project/dataflow/internal/model"
	"github.com/dataflow-project/dataflow/internal/relay"
)

// Loader is the first hop of the relational path: broker batches are appended
// to the relay buffer and only acknowledged upstream once the buffer has them
// durably.  The buffer, not the broker, is then the source for the batch
// commit engine.
type Loader struct {
	buffer   relay.RelayBuffer
	breakers *breaker.Registry
	m        *metrics.Metrics
}

func NewLoader(buffer relay.RelayBuffer, breakers *breaker.Registry, m *metrics.Metrics) *Loader {
	return &Loader{buffer: buffer, breakers: breakers, m: m}
}

// HandleBatch implements broker.BatchHandler.
func (l *Loader) HandleBatch(ctx context.Context, records []*model.Record) (model.AckDecision, error) {
	if len(records) == 0 {
		return model.Ack, nil
	}
	err := l.breakers.Get(relay.BreakerName).Execute(func() error {
		for _, record := range records {
			if _, err := l.buffer.Append(ctx, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, breaker.ErrOpen) {
			l.m.RecordBufferError(metrics.StoreOperationAppend)
		}
		log.WithError(err).Errorf("Failed to append batch of %d records to relay buffer; requeueing", len(records))
		return model.NackRequeue, err
	}
	log.Debugf("Appended batch of %d records to relay buffer", len(records))
	return model.Ack, nil
}
