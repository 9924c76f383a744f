package broker

import (
	"context"
	"strconv"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/pkg/errors"
)

const deadLetterSuffix = ".dlq"

// Dead letter header keys carried alongside the original payload
const (
	headerErrorMessage       = "error_message"
	headerErrorTimestamp     = "error_timestamp"
	headerOriginalRoutingKey = "original_routing_key"
)

// DeadLetterPublisher re-publishes unprocessable messages to the dead letter
// topic derived from the original topic name.
type DeadLetterPublisher struct {
	producer      pulsar.Producer
	originalTopic string
}

func NewDeadLetterPublisher(client pulsar.Client, originalTopic string) (*DeadLetterPublisher, error) {
	producer, err := client.CreateProducer(pulsar.ProducerOptions{
		Topic: originalTopic + deadLetterSuffix,
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "error creating dead letter producer for topic %s", originalTopic)
	}
	return &DeadLetterPublisher{producer: producer, originalTopic: originalTopic}, nil
}

// Publish sends the original payload to the dead letter topic together with
// headers describing why and when it was routed there.
func (p *DeadLetterPublisher) Publish(ctx context.Context, payload []byte, cause error) error {
	message := &pulsar.ProducerMessage{
		Payload: payload,
		Properties: map[string]string{
			headerErrorMessage:       cause.Error(),
			headerErrorTimestamp:     strconv.FormatInt(time.Now().UnixMilli(), 10),
			headerOriginalRoutingKey: p.originalTopic,
		},
	}
	if _, err := p.producer.Send(ctx, message); err != nil {
		return errors.WithMessagef(err, "error publishing to %s%s", p.originalTopic, deadLetterSuffix)
	}
	return nil
}

func (p *DeadLetterPublisher) Close() {
	p.producer.Close()
}
