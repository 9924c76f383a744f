package broker

import (
	"context"
	"testing"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataflow-project/dataflow/internal/common/ingest/metrics"
	"github.com/dataflow-project/dataflow/internal/model"
)

type fakeMessage struct {
	pulsar.Message
	payload      []byte
	redeliveries uint32
}

func (m *fakeMessage) Payload() []byte         { return m.payload }
func (m *fakeMessage) RedeliveryCount() uint32 { return m.redeliveries }
func (m *fakeMessage) ID() pulsar.MessageID    { return nil }

type fakeConsumer struct {
	pulsar.Consumer
	acked  []pulsar.Message
	nacked []pulsar.Message
}

func (c *fakeConsumer) Ack(message pulsar.Message)  { c.acked = append(c.acked, message) }
func (c *fakeConsumer) Nack(message pulsar.Message) { c.nacked = append(c.nacked, message) }

type fakeProducer struct {
	pulsar.Producer
	sent []*pulsar.ProducerMessage
}

func (p *fakeProducer) Send(_ context.Context, message *pulsar.ProducerMessage) (pulsar.MessageID, error) {
	p.sent = append(p.sent, message)
	return nil, nil
}

// promauto registers on the global registry, so the metrics are shared across tests
var testMetrics = metrics.NewMetrics("test_broker_adapter_")

func testAdapter() (*Adapter, *fakeConsumer, *fakeProducer) {
	consumer := &fakeConsumer{}
	producer := &fakeProducer{}
	deadLetter := &DeadLetterPublisher{producer: producer, originalTopic: "records"}
	adapter := NewAdapter(consumer, deadLetter, testMetrics, Config{
		Topic:           "records",
		MaxRedeliveries: 3,
	})
	return adapter, consumer, producer
}

func TestDeliverAcksProcessedBatch(t *testing.T) {
	adapter, consumer, producer := testAdapter()

	var delivered []*model.Record
	handler := func(ctx context.Context, records []*model.Record) (model.AckDecision, error) {
		delivered = records
		return model.Ack, nil
	}

	batch := []pulsar.Message{
		&fakeMessage{payload: []byte(`{"timestamp":1000,"randomValue":80,"hashValue":"50"}`)},
		&fakeMessage{payload: []byte(`{"timestamp":1001,"randomValue":95,"hashValue":"9A"}`)},
	}
	adapter.deliver(context.Background(), batch, handler)

	require.Len(t, delivered, 2)
	assert.Equal(t, &model.Record{Timestamp: 1000, RandomValue: 80, HashValue: "50"}, delivered[0])
	assert.Len(t, consumer.acked, 2)
	assert.Empty(t, consumer.nacked)
	assert.Empty(t, producer.sent)
}

func TestDeliverDeadLettersPoisonMessages(t *testing.T) {
	adapter, consumer, producer := testAdapter()

	var delivered []*model.Record
	handler := func(ctx context.Context, records []*model.Record) (model.AckDecision, error) {
		delivered = records
		return model.Ack, nil
	}

	batch := []pulsar.Message{
		&fakeMessage{payload: []byte(`not json`)},
		&fakeMessage{payload: []byte(`{"timestamp":1001,"randomValue":95,"hashValue":"9A"}`)},
	}
	adapter.deliver(context.Background(), batch, handler)

	// The poison message is acked and dead-lettered; the valid one still reaches the handler
	require.Len(t, delivered, 1)
	assert.Equal(t, int64(1001), delivered[0].Timestamp)
	assert.Len(t, consumer.acked, 2)
	require.Len(t, producer.sent, 1)
	assert.Equal(t, []byte(`not json`), producer.sent[0].Payload)
	assert.Equal(t, "records", producer.sent[0].Properties[headerOriginalRoutingKey])
	assert.Contains(t, producer.sent[0].Properties, headerErrorMessage)
	assert.Contains(t, producer.sent[0].Properties, headerErrorTimestamp)
}

func TestNackRequeueUnderRedeliveryLimit(t *testing.T) {
	adapter, consumer, producer := testAdapter()

	handler := func(ctx context.Context, records []*model.Record) (model.AckDecision, error) {
		return model.NackRequeue, errors.New("store unavailable")
	}

	batch := []pulsar.Message{
		&fakeMessage{payload: []byte(`{"timestamp":1000,"randomValue":80,"hashValue":"50"}`), redeliveries: 1},
	}
	adapter.deliver(context.Background(), batch, handler)

	assert.Empty(t, consumer.acked)
	assert.Len(t, consumer.nacked, 1)
	assert.Empty(t, producer.sent)
}

func TestNackRequeueAtRedeliveryLimitDeadLetters(t *testing.T) {
	adapter, consumer, producer := testAdapter()

	handler := func(ctx context.Context, records []*model.Record) (model.AckDecision, error) {
		return model.NackRequeue, errors.New("store unavailable")
	}

	batch := []pulsar.Message{
		&fakeMessage{payload: []byte(`{"timestamp":1000,"randomValue":80,"hashValue":"50"}`), redeliveries: 3},
	}
	adapter.deliver(context.Background(), batch, handler)

	assert.Len(t, consumer.acked, 1)
	assert.Empty(t, consumer.nacked)
	require.Len(t, producer.sent, 1)
	assert.Contains(t, producer.sent[0].Properties[headerErrorMessage], "store unavailable")
}

func TestNackDiscardDeadLettersWholeBatch(t *testing.T) {
	adapter, consumer, producer := testAdapter()

	handler := func(ctx context.Context, records []*model.Record) (model.AckDecision, error) {
		return model.NackDiscard, nil
	}

	batch := []pulsar.Message{
		&fakeMessage{payload: []byte(`{"timestamp":1000,"randomValue":80,"hashValue":"50"}`)},
		&fakeMessage{payload: []byte(`{"timestamp":1001,"randomValue":95,"hashValue":"9A"}`)},
	}
	adapter.deliver(context.Background(), batch, handler)

	assert.Len(t, consumer.acked, 2)
	assert.Len(t, producer.sent, 2)
}
