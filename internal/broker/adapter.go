package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dataflow-project/dataflow/internal/common/ingest/metrics"
	"github.com/dataflow-project/dataflow/internal/model"
)

// BatchHandler processes one batch of decoded records.  The returned decision
// is applied to every message that contributed to the batch; the error, if
// any, is carried into the dead letter headers.
type BatchHandler func(ctx context.Context, records []*model.Record) (model.AckDecision, error)

// Adapter receives record messages from the broker, delivers them to a
// handler in batches and honours the handler's ack decision against the
// broker's ack primitives.  Messages whose payload cannot be decoded are
// dead-lettered immediately rather than poisoning the batch.
type Adapter struct {
	consumer   pulsar.Consumer
	deadLetter *DeadLetterPublisher
	m          *metrics.Metrics
	config     Config
}

func NewAdapter(consumer pulsar.Consumer, deadLetter *DeadLetterPublisher, m *metrics.Metrics, config Config) *Adapter {
	return &Adapter{
		consumer:   consumer,
		deadLetter: deadLetter,
		m:          m,
		config:     config.WithDefaults(),
	}
}

// Run consumes until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context, handler BatchHandler) {
	log.Infof("Consuming topic %s as subscription %s", a.config.Topic, a.config.SubscriptionName)
	for ctx.Err() == nil {
		batch := a.receiveBatch(ctx)
		if len(batch) == 0 {
			continue
		}
		a.deliver(ctx, batch, handler)
	}
	log.Infof("Shutting down consumer for topic %s", a.config.Topic)
}

// receiveBatch collects up to BatchSize messages.  The batch is flushed as
// soon as one receive times out, so a quiet topic does not delay delivery of
// what has already arrived.
func (a *Adapter) receiveBatch(ctx context.Context) []pulsar.Message {
	batch := make([]pulsar.Message, 0, a.config.BatchSize)
	for len(batch) < a.config.BatchSize {
		receiveCtx, cancel := context.WithTimeout(ctx, a.config.ReceiveTimeout)
		message, err := a.consumer.Receive(receiveCtx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if err != nil {
			log.WithError(err).Warnf("Broker receive failed; backing off for %s", a.config.BackoffTime)
			time.Sleep(a.config.BackoffTime)
			break
		}
		batch = append(batch, message)
	}
	return batch
}

func (a *Adapter) deliver(ctx context.Context, batch []pulsar.Message, handler BatchHandler) {
	records := make([]*model.Record, 0, len(batch))
	messages := make([]pulsar.Message, 0, len(batch))
	for _, message := range batch {
		record, err := decodeMessage(message)
		if err != nil {
			// Poison message: route it to the dead letter topic on its own
			a.m.RecordBrokerMessageError(metrics.BrokerMessageErrorDeserialization)
			a.sendToDeadLetter(ctx, message, err)
			a.consumer.Ack(message)
			continue
		}
		records = append(records, record)
		messages = append(messages, message)
	}
	if len(records) == 0 {
		return
	}

	decision, handlerErr := handler(ctx, records)
	a.apply(ctx, decision, handlerErr, messages)
}

func (a *Adapter) apply(ctx context.Context, decision model.AckDecision, cause error, messages []pulsar.Message) {
	switch decision {
	case model.Ack:
		for _, message := range messages {
			a.consumer.Ack(message)
		}
	case model.NackRequeue:
		a.m.RecordBrokerMessageError(metrics.BrokerMessageErrorProcessing)
		for _, message := range messages {
			if message.RedeliveryCount() >= a.config.MaxRedeliveries {
				a.sendToDeadLetter(ctx, message, redeliveryCause(cause, a.config.MaxRedeliveries))
				a.consumer.Ack(message)
				continue
			}
			a.consumer.Nack(message)
		}
	case model.NackDiscard:
		a.m.RecordBrokerMessageError(metrics.BrokerMessageErrorProcessing)
		for _, message := range messages {
			a.sendToDeadLetter(ctx, message, discardCause(cause))
			a.consumer.Ack(message)
		}
	}
}

func (a *Adapter) sendToDeadLetter(ctx context.Context, message pulsar.Message, cause error) {
	if err := a.deadLetter.Publish(ctx, message.Payload(), cause); err != nil {
		log.WithError(err).Errorf("Failed to dead-letter message %s", message.ID())
		return
	}
	a.m.RecordDeadLettered()
	log.Infof("Sent message %s to dead letter topic: %s", message.ID(), cause)
}

func decodeMessage(message pulsar.Message) (*model.Record, error) {
	var record model.Record
	if err := json.Unmarshal(message.Payload(), &record); err != nil {
		return nil, errors.WithMessagef(err, "error decoding message %s", message.ID())
	}
	return &record, nil
}

func redeliveryCause(cause error, maxRedeliveries uint32) error {
	if cause == nil {
		cause = errors.New("processing failed")
	}
	return errors.WithMessagef(cause, "redelivery limit of %d reached", maxRedeliveries)
}

func discardCause(cause error) error {
	if cause == nil {
		return errors.New("record batch discarded by handler")
	}
	return cause
}
