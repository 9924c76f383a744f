package metrics

import (
	"github.com/dataflow-project/dataflow/internal/common/ingest/metrics"
)

var m = metrics.NewMetrics(metrics.RecordIngesterMetricsPrefix)

func Get() *metrics.Metrics {
	return m
}
