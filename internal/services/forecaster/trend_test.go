package forecaster

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

func monthlySeries(n int, valueAt func(i int) float64) []models.SeriesPoint {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make([]models.SeriesPoint, n)
	for i := 0; i < n; i++ {
		series[i] = models.SeriesPoint{Date: start.AddDate(0, i, 0), Value: valueAt(i)}
	}
	return series
}

func TestTrendKind(t *testing.T) {
	f := NewTrendForecaster(DefaultTrendConfig())
	assert.Equal(t, domsvc.KindTrend, f.Kind())
}

func TestTrendInsufficientHistory(t *testing.T) {
	f := NewTrendForecaster(DefaultTrendConfig())
	_, err := f.Train(context.Background(), monthlySeries(4, func(i int) float64 { return float64(i) }), models.FreqMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientHistory))
}

func TestTrendForecastsLinearRamp(t *testing.T) {
	series := monthlySeries(48, func(i int) float64 { return 1000 + 10*float64(i) })
	f := NewTrendForecaster(DefaultTrendConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	defer model.Dispose()

	points, err := model.Predict(context.Background(), 6, 0.95)
	require.NoError(t, err)
	require.Len(t, points, 6)

	last := series[len(series)-1].Value
	for h, p := range points {
		want := last + 10*float64(h+1)
		assert.InDelta(t, want, p.Value, 1.0, "step %d", h)
		assert.LessOrEqual(t, p.LowerBound, p.Value)
		assert.LessOrEqual(t, p.Value, p.UpperBound)
	}
}

func TestTrendIntervalWidens(t *testing.T) {
	series := monthlySeries(60, func(i int) float64 {
		return 500 + 5*float64(i) + 20*math.Sin(float64(i))
	})
	f := NewTrendForecaster(DefaultTrendConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	defer model.Dispose()

	points, err := model.Predict(context.Background(), 12, 0.95)
	require.NoError(t, err)

	for i := 1; i < len(points); i++ {
		prev := points[i-1].UpperBound - points[i-1].LowerBound
		cur := points[i].UpperBound - points[i].LowerBound
		assert.GreaterOrEqual(t, cur, prev, "interval narrowed at step %d", i)
	}
}

func TestTrendRejectsUnknownConfidence(t *testing.T) {
	series := monthlySeries(48, func(i int) float64 { return 100 + float64(i) })
	f := NewTrendForecaster(DefaultTrendConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	defer model.Dispose()

	_, err = model.Predict(context.Background(), 6, 0.93)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfidenceLevel))
}

func TestDifferenceAndIntegrate(t *testing.T) {
	values := []float64{2, 5, 9, 14, 20}
	d1 := difference(values, 1)
	assert.Equal(t, []float64{3, 4, 5, 6}, d1)

	tails := integrationTails(values, 1)
	restored := integrate([]float64{7, 8}, tails, 1)
	assert.Equal(t, []float64{27, 35}, restored)
}

func TestLevinsonDurbinAR1(t *testing.T) {
	// ac for AR(1) with phi=0.6: ac[k] = 0.6^k * ac[0]
	ac := []float64{1, 0.6, 0.36}
	phi, err := levinsonDurbin(ac, 1)
	require.NoError(t, err)
	require.Len(t, phi, 1)
	assert.InDelta(t, 0.6, phi[0], 1e-9)
}
