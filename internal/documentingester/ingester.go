package documentingester

import (
	"github.com/apache/pulsar-client-go/pulsar"
	log "github.com/sirupsen/logrus"

	"github.com/dataflow-project/dataflow/internal/breaker"
	"github.com/dataflow-project/dataflow/internal/broker"
	"github.com/dataflow-project/dataflow/internal/common"
	"github.com/dataflow-project/dataflow/internal/common/app"
	"github.com/dataflow-project/dataflow/internal/documentingester/configuration"
	"github.com/dataflow-project/dataflow/internal/documentingester/docdb"
	"github.com/dataflow-project/dataflow/internal/documentingester/merge"
	"github.com/dataflow-project/dataflow/internal/documentingester/metrics"
	"github.com/dataflow-project/dataflow/internal/rules"
)

// Run starts the document pipeline: broker batches are merged straight into
// the mongo aggregate collection.  Runs until a SIGTERM is received.
func Run(config *configuration.DocumentIngesterConfiguration) {
	log.Info("Document Ingester Starting")

	if err := config.Validate(); err != nil {
		log.Fatal(err)
	}

	m := metrics.Get()
	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()

	ctx := app.CreateContextWithShutdown()

	log.Info("Connecting to mongo")
	mongoClient, store, err := docdb.Connect(ctx, config.Mongo)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to mongo")
	}
	defer func() {
		if err := mongoClient.Disconnect(ctx); err != nil {
			log.WithError(err).Error("Failed to disconnect from mongo")
		}
	}()

	breakers := breaker.NewRegistry(config.Breaker, config.BreakerOverrides)

	pulsarClient, err := pulsar.NewClient(pulsar.ClientOptions{URL: config.Pulsar.URL})
	if err != nil {
		log.WithError(err).Fatal("Failed to create pulsar client")
	}
	defer pulsarClient.Close()

	consumer, err := pulsarClient.Subscribe(pulsar.ConsumerOptions{
		Topic:            config.Pulsar.Topic,
		SubscriptionName: config.Pulsar.SubscriptionName,
		Type:             pulsar.Shared,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to subscribe to record topic")
	}
	defer consumer.Close()

	deadLetter, err := broker.NewDeadLetterPublisher(pulsarClient, config.Pulsar.Topic)
	if err != nil {
		log.WithError(err).Fatal("Failed to create dead letter publisher")
	}
	defer deadLetter.Close()

	nesting := config.Nesting
	if nesting == (rules.ThresholdRule{}) {
		nesting = rules.DefaultNestingRule()
	}
	engine := merge.NewEngine(store, nesting, breakers, m)
	adapter := broker.NewAdapter(consumer, deadLetter, m, config.Pulsar)

	log.Info("Ingestion pipeline set up. Running until shutdown event received")
	adapter.Run(ctx, engine.HandleBatch)
	log.Info("Shutdown event received - closing")
}
