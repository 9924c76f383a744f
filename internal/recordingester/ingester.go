package recordingester

import (
	"context"
	"time"

	"github.com/apache/pulsar-client-go/pulsar"
	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dataflow-project/dataflow/internal/breaker"
	"github.com/dataflow-project/dataflow/internal/broker"
	"github.com/dataflow-project/dataflow/internal/common"
	"github.com/dataflow-project/dataflow/internal/common/app"
	commonmetrics "github.com/dataflow-project/dataflow/internal/common/ingest/metrics"
	"github.com/dataflow-project/dataflow/internal/common/task"
	"github.com/dataflow-project/dataflow/internal/recordingester/commit"
	"github.com/dataflow-project/dataflow/internal/recordingester/configuration"
	"github.com/dataflow-project/dataflow/internal/recordingester/load"
	"github.com/dataflow-project/dataflow/internal/recordingester/metrics"
	"github.com/dataflow-project/dataflow/internal/recordingester/recorddb"
	"github.com/dataflow-project/dataflow/internal/relay"
)

// Run starts the relational pipeline: broker batches are buffered in the
// relay stream and a scheduled engine commits them to postgres in batches.
// Runs until a SIGTERM is received.
func Run(config *configuration.RecordIngesterConfiguration) {
	log.Info("Record Ingester Starting")

	if err := config.Validate(); err != nil {
		log.Fatal(err)
	}

	m := metrics.Get()
	shutdownMetricServer := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetricServer()

	ctx := app.CreateContextWithShutdown()

	redisClient := redis.NewUniversalClient(&config.Redis)
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.WithError(err).Error("Failed to close relay buffer redis client")
		}
	}()

	buffer := relay.NewRedisRelayBuffer(redisClient, config.Relay.Stream, config.Relay.Group)
	if err := buffer.EnsureGroup(ctx); err != nil {
		log.WithError(err).Fatal("Failed to ensure relay consumer group")
	}

	log.Info("Opening connection pool to postgres")
	db, err := recorddb.OpenPgxPool(config.Postgres)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to postgres")
	}
	defer db.Close()

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

	engine := commit.NewEngine(buffer, recorddb.NewRecordDb(db), breakers, m, config.Commit)
	taskManager := task.NewBackgroundTaskManager(ctx, commonmetrics.RecordIngesterMetricsPrefix)
	taskManager.Register(func(ctx context.Context) {
		if err := engine.Tick(ctx); err != nil {
			if errors.Is(err, breaker.ErrOpen) {
				log.Warnf("Batch commit skipped: %s", err)
			} else {
				log.WithError(err).Error("Batch commit failed")
			}
		}
	}, config.Commit.Interval, "batch_commit")
	defer func() {
		if timedOut := taskManager.StopAll(30 * time.Second); timedOut {
			log.Warn("Timed out waiting for batch commit to stop")
		}
	}()

	loader := load.NewLoader(buffer, breakers, m)
	adapter := broker.NewAdapter(consumer, deadLetter, m, config.Pulsar)

	log.Info("Ingestion pipeline set up. Running until shutdown event received")
	adapter.Run(ctx, loader.HandleBatch)
	log.Info("Shutdown event received - closing")
}
