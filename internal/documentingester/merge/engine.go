package merge

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dataflow-project/dataflow/internal/breaker"
	"github.com/dataflow-project/dataflow/internal/common/ingest/metrics"
	"github.com/dataflow-project/dataflow/internal/documentingester/docdb"
	"github.com/dataflow-project/dataflow/internal/model"
	"github.com/dataflow-project/dataflow/internal/rules"
)

// Engine decides, per record, between three outcomes: drop it as a duplicate,
// nest it under the most recent aggregate document, or create a new top level
// document.  The decision and the write happen behind the document store
// breaker.
type Engine struct {
	store    docdb.Store
	nesting  rules.Rule
	breakers *breaker.Registry
	m        *metrics.Metrics
}

func NewEngine(store docdb.Store, nesting rules.Rule, breakers *breaker.Registry, m *metrics.Metrics) *Engine {
	return &Engine{store: store, nesting: nesting, breakers: breakers, m: m}
}

// HandleBatch implements broker.BatchHandler.  Records are merged one at a
// time; the first failure requeues the whole batch.  Redelivered records that
// already made it into the store are dropped by the duplicate check.
func (e *Engine) HandleBatch(ctx context.Context, records []*model.Record) (model.AckDecision, error) {
	for _, record := range records {
		if err := e.Merge(ctx, record); err != nil {
			log.WithError(err).Errorf("Failed to merge record batch; requeueing %d records", len(records))
			return model.NackRequeue, err
		}
	}
	return model.Ack, nil
}

// Merge applies a single record to the document store.  Reprocessing a record
// that was already stored is a successful no-op.
func (e *Engine) Merge(ctx context.Context, record *model.Record) error {
	err := e.breakers.Get(docdb.BreakerName).Execute(func() error {
		return e.merge(ctx, record)
	})
	if err != nil && !errors.Is(err, breaker.ErrOpen) {
		e.m.RecordStoreError(metrics.StoreOperationInsert)
	}
	return err
}

func (e *Engine) merge(ctx context.Context, record *model.Record) error {
	id := docdb.DocumentID(record)

	exists, err := e.store.Exists(ctx, id)
	if err != nil {
		return errors.WithMessagef(err, "failed duplicate check for document %s", id)
	}
	if exists {
		e.m.RecordMergeOutcome(metrics.MergeOutcomeDuplicate)
		log.Debugf("Document %s already stored; skipping", id)
		return nil
	}

	doc := docdb.FromRecord(record)
	if e.nesting.Evaluate(record) {
		parent, err := e.store.MostRecent(ctx)
		if err != nil {
			return errors.WithMessagef(err, "failed to load nesting parent for document %s", id)
		}
		if parent != nil {
			if err := e.store.PushNested(ctx, parent.ID, doc); err != nil {
				return errors.WithMessagef(err, "failed to nest document %s under %s", id, parent.ID)
			}
			e.m.RecordMergeOutcome(metrics.MergeOutcomeNested)
			log.Infof("Nested document %s under %s", id, parent.ID)
			return nil
		}
		// No parent to nest under; fall through and create a top level document
	}

	if err := e.store.Insert(ctx, doc); err != nil {
		return errors.WithMessagef(err, "failed to insert document %s", id)
	}
	e.m.RecordMergeOutcome(metrics.MergeOutcomeCreated)
	log.Infof("Created document %s", id)
	return nil
}
