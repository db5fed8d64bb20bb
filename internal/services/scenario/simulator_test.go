package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

var simStart = time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)

func TestRunRejectsBadDefinitions(t *testing.T) {
	s := NewSimulator()

	_, err := s.Run(context.Background(), models.ScenarioDefinition{Name: "bad", Steps: 0}, 100, simStart, models.FreqMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))

	_, err = s.Run(context.Background(), models.ScenarioDefinition{Name: "bad", Steps: 3, Volatility: -0.1}, 100, simStart, models.FreqMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))
}

func TestRunDeterministicPaths(t *testing.T) {
	def := models.ScenarioDefinition{Name: "base", Drift: 0.01, Volatility: 0.05, Steps: 6}

	a, err := NewSimulator(WithSeed(42), WithPaths(200)).Run(context.Background(), def, 1000, simStart, models.FreqMonthly)
	require.NoError(t, err)
	b, err := NewSimulator(WithSeed(42), WithPaths(200)).Run(context.Background(), def, 1000, simStart, models.FreqMonthly)
	require.NoError(t, err)

	assert.Equal(t, a.Statistics, b.Statistics)
	assert.Equal(t, a.SamplePaths, b.SamplePaths)
}

func TestRunZeroVolatilityCompounds(t *testing.T) {
	def := models.ScenarioDefinition{Name: "steady", Drift: 0.1, Volatility: 0, Steps: 3}
	s := NewSimulator(WithPaths(10))

	res, err := s.Run(context.Background(), def, 100, simStart, models.FreqMonthly)
	require.NoError(t, err)

	// every path is 100 * 1.1^t with no randomness
	want := []float64{110, 121, 133.1}
	require.Len(t, res.SamplePaths, 10)
	for _, path := range res.SamplePaths {
		require.Len(t, path, 3)
		for i, p := range path {
			assert.InDelta(t, want[i], p.Value, 1e-9)
		}
	}
	assert.InDelta(t, 133.1, res.Statistics.Mean, 1e-9)
	assert.InDelta(t, 0, res.Statistics.Std, 1e-9)
}

func TestRunFlatWhenDriftAndVolatilityZero(t *testing.T) {
	def := models.ScenarioDefinition{Name: "frozen", Drift: 0, Volatility: 0, Steps: 5}
	s := NewSimulator(WithPaths(20))

	res, err := s.Run(context.Background(), def, 250, simStart, models.FreqMonthly)
	require.NoError(t, err)

	// every path repeats the last baseline value
	require.Len(t, res.SamplePaths, 20)
	for _, path := range res.SamplePaths {
		require.Len(t, path, 5)
		for _, p := range path {
			assert.InDelta(t, 250.0, p.Value, 1e-12)
		}
	}
	assert.InDelta(t, 250.0, res.Statistics.Mean, 1e-12)
	assert.InDelta(t, 250.0, res.Statistics.Median, 1e-12)
	assert.InDelta(t, 0, res.Statistics.Std, 1e-12)
}

func TestRunStatisticsOrdered(t *testing.T) {
	def := models.ScenarioDefinition{Name: "vol", Drift: 0, Volatility: 0.08, Steps: 12}
	s := NewSimulator(WithSeed(7))

	res, err := s.Run(context.Background(), def, 500, simStart, models.FreqMonthly)
	require.NoError(t, err)

	st := res.Statistics
	assert.LessOrEqual(t, st.Percentiles.P5, st.Percentiles.P25)
	assert.LessOrEqual(t, st.Percentiles.P25, st.Median)
	assert.LessOrEqual(t, st.Median, st.Percentiles.P75)
	assert.LessOrEqual(t, st.Percentiles.P75, st.Percentiles.P95)
	assert.Greater(t, st.Std, 0.0)
}

func TestRunRetainsAtMostSampleCap(t *testing.T) {
	def := models.ScenarioDefinition{Name: "cap", Drift: 0, Volatility: 0.02, Steps: 2}
	s := NewSimulator(WithPaths(500))

	res, err := s.Run(context.Background(), def, 100, simStart, models.FreqMonthly)
	require.NoError(t, err)
	assert.Len(t, res.SamplePaths, RetainedPaths)
}

func TestRunDatesFollowFrequency(t *testing.T) {
	def := models.ScenarioDefinition{Name: "dates", Drift: 0, Volatility: 0, Steps: 3}
	s := NewSimulator(WithPaths(1))

	res, err := s.Run(context.Background(), def, 100, simStart, models.FreqMonthly)
	require.NoError(t, err)

	path := res.SamplePaths[0]
	assert.Equal(t, simStart.AddDate(0, 1, 0), path[0].Date)
	assert.Equal(t, simStart.AddDate(0, 2, 0), path[1].Date)
	assert.Equal(t, simStart.AddDate(0, 3, 0), path[2].Date)
}

func TestRunAllPreservesOrder(t *testing.T) {
	defs := []models.ScenarioDefinition{
		{Name: "optimistic", Drift: 0.02, Volatility: 0.01, Steps: 4},
		{Name: "pessimistic", Drift: -0.02, Volatility: 0.01, Steps: 4},
	}
	s := NewSimulator(WithPaths(50))

	results, err := s.RunAll(context.Background(), defs, 100, simStart, models.FreqMonthly)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "optimistic", results[0].ScenarioName)
	assert.Equal(t, "pessimistic", results[1].ScenarioName)
	assert.Greater(t, results[0].Statistics.Mean, results[1].Statistics.Mean)
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	def := models.ScenarioDefinition{Name: "c", Drift: 0, Volatility: 0.01, Steps: 2}
	_, err := NewSimulator().Run(ctx, def, 100, simStart, models.FreqMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
