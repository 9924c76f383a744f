package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type (
	StoreOperation     string
	BrokerMessageError string
	MergeOutcome       string
)

const (
	StoreOperationAppend      StoreOperation = "append"
	StoreOperationRead        StoreOperation = "read"
	StoreOperationAcknowledge StoreOperation = "acknowledge"
	StoreOperationInsert      StoreOperation = "insert"
	StoreOperationPush        StoreOperation = "push"
	StoreOperationExists      StoreOperation = "exists"

	BrokerMessageErrorDeserialization BrokerMessageError = "deserialization"
	BrokerMessageErrorProcessing      BrokerMessageError = "processing"

	MergeOutcomeDuplicate MergeOutcome = "duplicate"
	MergeOutcomeNested    MergeOutcome = "nested"
	MergeOutcomeCreated   MergeOutcome = "created"
)

const (
	RecordIngesterMetricsPrefix   = "dataflow_record_ingester_"
	DocumentIngesterMetricsPrefix = "dataflow_document_ingester_"
)

type Metrics struct {
	bufferErrorsCounter  *prometheus.CounterVec
	storeErrorsCounter   *prometheus.CounterVec
	brokerMessageError   *prometheus.CounterVec
	mergeOutcomesCounter *prometheus.CounterVec
	decodeErrorsCounter  prometheus.Counter
	deadLetteredCounter  prometheus.Counter
	rowsCommittedCounter prometheus.Counter
}

func NewMetrics(prefix string) *Metrics {
	bufferErrorsOpts := prometheus.CounterOpts{
		Name: prefix + "buffer_errors",
		Help: "Number of relay buffer errors grouped by operation",
	}
	storeErrorsOpts := prometheus.CounterOpts{
		Name: prefix + "store_errors",
		Help: "Number of persistent store errors grouped by operation",
	}
	brokerMessageErrorOpts := prometheus.CounterOpts{
		Name: prefix + "broker_message_errors",
		Help: "Number of broker message errors grouped by error type",
	}
	mergeOutcomesOpts := prometheus.CounterOpts{
		Name: prefix + "merge_outcomes",
		Help: "Number of document merge decisions grouped by outcome",
	}
	decodeErrorsOpts := prometheus.CounterOpts{
		Name: prefix + "decode_errors",
		Help: "Number of buffer entries dropped because they could not be decoded",
	}
	deadLetteredOpts := prometheus.CounterOpts{
		Name: prefix + "dead_lettered_messages",
		Help: "Number of messages routed to the dead letter destination",
	}
	rowsCommittedOpts := prometheus.CounterOpts{
		Name: prefix + "rows_committed",
		Help: "Number of rows committed to the relational store",
	}
	return &Metrics{
		bufferErrorsCounter:  promauto.NewCounterVec(bufferErrorsOpts, []string{"operation"}),
		storeErrorsCounter:   promauto.NewCounterVec(storeErrorsOpts, []string{"operation"}),
		brokerMessageError:   promauto.NewCounterVec(brokerMessageErrorOpts, []string{"error"}),
		mergeOutcomesCounter: promauto.NewCounterVec(mergeOutcomesOpts, []string{"outcome"}),
		decodeErrorsCounter:  promauto.NewCounter(decodeErrorsOpts),
		deadLetteredCounter:  promauto.NewCounter(deadLetteredOpts),
		rowsCommittedCounter: promauto.NewCounter(rowsCommittedOpts),
	}
}

func (m *Metrics) RecordBufferError(operation StoreOperation) {
	m.bufferErrorsCounter.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordStoreError(operation StoreOperation) {
	m.storeErrorsCounter.With(map[string]string{"operation": string(operation)}).Inc()
}

func (m *Metrics) RecordBrokerMessageError(err BrokerMessageError) {
	m.brokerMessageError.With(map[string]string{"error": string(err)}).Inc()
}

func (m *Metrics) RecordMergeOutcome(outcome MergeOutcome) {
	m.mergeOutcomesCounter.With(map[string]string{"outcome": string(outcome)}).Inc()
}

func (m *Metrics) RecordDecodeError() {
	m.decodeErrorsCounter.Inc()
}

func (m *Metrics) RecordDeadLettered() {
	m.deadLetteredCounter.Inc()
}

func (m *Metrics) RecordRowsCommitted(count int) {
	m.rowsCommittedCounter.Add(float64(count))
}
