package forecaster

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

func TestSmoothingKind(t *testing.T) {
	f := NewSmoothingForecaster(DefaultSmoothingConfig())
	assert.Equal(t, domsvc.KindSmoothing, f.Kind())
}

func TestSmoothingInsufficientHistory(t *testing.T) {
	f := NewSmoothingForecaster(DefaultSmoothingConfig())
	_, err := f.Train(context.Background(), monthlySeries(5, func(i int) float64 { return float64(i) }), models.FreqMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientHistory))
}

func TestSmoothingTracksTrend(t *testing.T) {
	// 20 points keeps the fit trend-only, which follows a linear ramp exactly
	series := monthlySeries(20, func(i int) float64 { return 200 + 4*float64(i) })
	f := NewSmoothingForecaster(DefaultSmoothingConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	defer model.Dispose()

	points, err := model.Predict(context.Background(), 4, 0.90)
	require.NoError(t, err)
	require.Len(t, points, 4)

	last := series[len(series)-1].Value
	for h, p := range points {
		want := last + 4*float64(h+1)
		assert.InDelta(t, want, p.Value, 1e-6, "step %d", h)
		assert.LessOrEqual(t, p.LowerBound, p.Value)
		assert.LessOrEqual(t, p.Value, p.UpperBound)
	}
}

func TestSmoothingSeasonalSeries(t *testing.T) {
	seasonalPattern := []float64{30, -10, 5, -25, 40, 0, -15, 20, -30, 10, -5, -20}
	series := monthlySeries(48, func(i int) float64 {
		return 1000 + 2*float64(i) + seasonalPattern[i%12]
	})
	f := NewSmoothingForecaster(DefaultSmoothingConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	defer model.Dispose()

	points, err := model.Predict(context.Background(), 12, 0.95)
	require.NoError(t, err)
	require.Len(t, points, 12)

	// the forecast should carry the seasonal shape: months with the
	// highest and lowest pattern values stay ordered
	var hi, lo float64
	for h, p := range points {
		switch (48 + h) % 12 {
		case 4: // +40 month
			hi = p.Value
		case 8: // -30 month
			lo = p.Value
		}
	}
	assert.Greater(t, hi, lo)
}

func TestHoltWintersForecastIndexing(t *testing.T) {
	s := &hwState{
		level:    100,
		trend:    2,
		seasonal: []float64{1, -1, 3},
		observed: 9,
	}
	// observed=9, h=1 lands on seasonal index (9+1-1)%3 = 0
	assert.InDelta(t, 103, s.forecast(1), 1e-9)
	assert.InDelta(t, 103, s.forecast(2), 1e-9) // 100+4-1
	assert.InDelta(t, 109, s.forecast(3), 1e-9) // 100+6+3
}

func TestSmoothingDisposedPredictFails(t *testing.T) {
	series := monthlySeries(30, func(i int) float64 { return 100 + float64(i) })
	f := NewSmoothingForecaster(DefaultSmoothingConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	model.Dispose()

	_, err = model.Predict(context.Background(), 3, 0.95)
	require.Error(t, err)
}
