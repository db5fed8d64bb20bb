package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func series(values ...float64) []models.SeriesPoint {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.SeriesPoint, len(values))
	for i, v := range values {
		out[i] = models.SeriesPoint{Date: start.AddDate(0, i, 0), Value: v}
	}
	return out
}

func TestExtractInsufficientHistory(t *testing.T) {
	_, err := Extract(series(42))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientHistory))
}

func TestExtractLinearSeries(t *testing.T) {
	s := series(10, 13, 16, 19, 22, 25, 28, 31)

	fs, err := Extract(s)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, fs.TrendSlope, 1e-9)
	assert.InDelta(t, 10.0, fs.TrendIntercept, 1e-9)
	assert.Greater(t, fs.Volatility, 0.0)
	assert.False(t, fs.Cyclical)
}

func TestLinearTrendShortInputs(t *testing.T) {
	slope, intercept := LinearTrend([]float64{7})
	assert.Equal(t, 0.0, slope)
	assert.Equal(t, 7.0, intercept)

	slope, intercept = LinearTrend(nil)
	assert.Equal(t, 0.0, slope)
	assert.Equal(t, 0.0, intercept)
}

func TestAutocorrelationPeriodicSeries(t *testing.T) {
	values := make([]float64, 48)
	for i := range values {
		values[i] = math.Sin(2 * math.Pi * float64(i) / 12)
	}

	acf := Autocorrelation(values, 14)
	require.Len(t, acf, 14)
	// lag 12 should be the strongest positive correlation
	assert.Greater(t, acf[11], 0.5)
	assert.Greater(t, acf[11], acf[5])
}

func TestAutocorrelationFlatSeries(t *testing.T) {
	acf := Autocorrelation([]float64{5, 5, 5, 5}, 2)
	assert.Equal(t, []float64{0, 0}, acf)
}

func TestDetectCyclePeriodicSeries(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + 20*math.Sin(2*math.Pi*float64(i)/12)
	}
	assert.Equal(t, 12, DetectCycle(values, 20))
}

func TestDetectCycleNoise(t *testing.T) {
	assert.Equal(t, 1, DetectCycle([]float64{1, 2, 1}, 5))
	assert.Equal(t, 1, DetectCycle([]float64{3, 3, 3, 3, 3, 3, 3, 3}, 4))
}
