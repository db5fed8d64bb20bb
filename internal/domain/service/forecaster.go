package service

import (
	"context"

	"FinCast/internal/domain/models"
)

// ModelKind names a forecasting strategy.
type ModelKind string

const (
	KindSequence  ModelKind = "sequence"
	KindTrend     ModelKind = "trend"
	KindSmoothing ModelKind = "smoothing"
)

// TrainedModel is the state produced by one training run. It is owned by
// a single request and must be released with Dispose on every exit path,
// including cancellation.
type TrainedModel interface {
	// Predict produces horizon points after the end of the training
	// series at the requested confidence level.
	Predict(ctx context.Context, horizon int, confidence float64) ([]models.PredictionPoint, error)

	// BacktestMSE returns the held-out validation error of the fit, or 0
	// when no backtest was performed.
	BacktestMSE() float64

	// Dispose releases buffers held by the trained state.
	Dispose()
}

// Forecaster is one interchangeable forecasting strategy.
type Forecaster interface {
	Kind() ModelKind

	// MinHistory is the smallest series length the strategy accepts.
	// Shorter series fail with models.ErrInsufficientHistory.
	MinHistory() int

	// Train fits the strategy to the series. The returned state is not
	// shared across requests.
	Train(ctx context.Context, series []models.SeriesPoint, freq models.Frequency) (TrainedModel, error)
}
