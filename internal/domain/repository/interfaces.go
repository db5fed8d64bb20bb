package repository

import (
	"context"

	"FinCast/internal/domain/models"
)

// SeriesSource supplies ordered, deduplicated historical series for a
// tenant/client scope. The engine never scopes data itself; callers pass
// explicit tenant and client identifiers. Implementations return
// models.ErrDataUnavailable when zero records exist for the scope.
type SeriesSource interface {
	FetchSeries(ctx context.Context, tenantID, clientID string, metric models.MetricType, rng *models.DateRange) ([]models.SeriesPoint, error)
}

// BenchmarkSource supplies externally maintained reference series for
// benchmark comparison. The engine treats the data as opaque input.
type BenchmarkSource interface {
	FetchBenchmark(ctx context.Context, metric models.MetricType, industry string) ([]models.SeriesPoint, error)
}

// ResultPublisher emits completed prediction summaries for downstream
// consumers. Implementations may be no-ops when eventing is disabled.
type ResultPublisher interface {
	PublishResult(ctx context.Context, res *models.PredictionResult) error
	Close() error
}

// Metrics records engine telemetry.
type Metrics interface {
	RecordPrediction(metric, outcome string)
	RecordModelDuration(model string, seconds float64)
	RecordModelFailure(model string)
	RecordCacheEvent(event string)
	RecordQueueDepth(depth int)
}
