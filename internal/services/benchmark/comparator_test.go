package benchmark

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func forecastOf(values ...float64) []models.PredictionPoint {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PredictionPoint, len(values))
	for i, v := range values {
		out[i] = models.PredictionPoint{Date: start.AddDate(0, i, 0), Value: v}
	}
	return out
}

func referenceOf(values ...float64) []models.SeriesPoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.SeriesPoint, len(values))
	for i, v := range values {
		out[i] = models.SeriesPoint{Date: start.AddDate(0, i, 0), Value: v}
	}
	return out
}

func TestCompareRejectsShortInputs(t *testing.T) {
	c := NewComparator()

	_, err := c.Compare(forecastOf(100), referenceOf(1, 2, 3))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))

	_, err = c.Compare(forecastOf(100, 110), referenceOf(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDataUnavailable))
}

func TestCompareRelativePerformance(t *testing.T) {
	c := NewComparator()

	// forecast grows 10% per step, benchmark 5% per step
	forecast := forecastOf(100, 110, 120)
	reference := referenceOf(100, 105, 110.25, 115.7625)

	cmp, err := c.Compare(forecast, reference)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, cmp.RelativePerformance, 1e-9)
	assert.NotEmpty(t, cmp.Notes)
}

func TestCompareZeroBenchmarkGrowth(t *testing.T) {
	c := NewComparator()

	cmp, err := c.Compare(forecastOf(100, 110), referenceOf(50, 50, 50))
	require.NoError(t, err)
	assert.True(t, math.IsInf(cmp.RelativePerformance, 1))
	assert.Contains(t, cmp.Notes[0], "benchmark mean growth is zero")

	cmp, err = c.Compare(forecastOf(100, 100), referenceOf(50, 50, 50))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, cmp.RelativePerformance, 1e-9)
}

func TestComparePercentileRank(t *testing.T) {
	// benchmark growths: 10%, 20%, 30%, 40%
	reference := referenceOf(100, 110, 132, 171.6, 240.24)
	c := NewComparator()

	// forecast grows 25% per step: above two of four benchmark growths
	cmp, err := c.Compare(forecastOf(100, 125), reference)
	require.NoError(t, err)
	assert.InDelta(t, 50, cmp.PercentileRank, 1e-9)

	// forecast grows 50% per step: above all of them
	cmp, err = c.Compare(forecastOf(100, 150), reference)
	require.NoError(t, err)
	assert.InDelta(t, 100, cmp.PercentileRank, 1e-9)
	assert.Contains(t, cmp.Notes[len(cmp.Notes)-1], "top quartile")
}

func TestRankWithinTies(t *testing.T) {
	samples := []float64{0.1, 0.2, 0.2, 0.4}
	assert.InDelta(t, 75, rankWithin(samples, 0.2), 1e-9)
	assert.InDelta(t, 0, rankWithin(samples, 0.05), 1e-9)
}

func TestGrowthRate(t *testing.T) {
	assert.InDelta(t, 0.1, growthRate(100, 120, 3), 1e-9)
	assert.Equal(t, 0.0, growthRate(0, 120, 3))
}
