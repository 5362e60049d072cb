package pipeline

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dativo-io/veil/internal/analyzer"
	"github.com/dativo-io/veil/internal/metrics"
	veilotel "github.com/dativo-io/veil/internal/otel"
)

const meterName = "github.com/dativo-io/veil/internal/pipeline"

var (
	entitiesHistogram  metric.Int64Histogram
	entitiesOnce       sync.Once
	entitiesRegistered bool
)

func initEntityMetrics() {
	var err error
	entitiesHistogram, err = veilotel.Meter(meterName).Int64Histogram(
		"veil.entities.detected",
		metric.WithDescription("Entities detected per analyzed text"),
		metric.WithUnit("{entity}"),
	)
	if err != nil {
		return
	}
	entitiesRegistered = true
}

// recordEntities counts detections per entity type on the Prometheus
// collector and records the per-text total on the OTel histogram.
func recordEntities(ctx context.Context, results []analyzer.RecognizerResult) {
	for _, r := range results {
		metrics.EntitiesDetected.WithLabelValues(r.EntityType).Inc()
	}
	entitiesOnce.Do(initEntityMetrics)
	if !entitiesRegistered {
		return
	}
	entitiesHistogram.Record(ctx, int64(len(results)), metric.WithAttributes(
		attribute.Bool("veil.has_entities", len(results) > 0),
	))
}
