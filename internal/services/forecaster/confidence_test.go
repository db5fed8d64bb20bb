package forecaster

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func TestZScoreSupportedLevels(t *testing.T) {
	cases := map[float64]float64{
		0.68: 1.0,
		0.80: 1.282,
		0.90: 1.645,
		0.95: 1.96,
		0.99: 2.576,
	}
	for confidence, want := range cases {
		z, err := ZScore(confidence)
		require.NoError(t, err)
		assert.InDelta(t, want, z, 1e-9)
	}
}

func TestZScoreRejectsUnknownLevel(t *testing.T) {
	for _, confidence := range []float64{0.5, 0.93, 1.0, 0} {
		_, err := ZScore(confidence)
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrInvalidConfidenceLevel))
	}
}

func TestSupportedConfidence(t *testing.T) {
	assert.True(t, SupportedConfidence(0.95))
	assert.False(t, SupportedConfidence(0.93))
}

func TestBuildPointsDatesStrictlyIncrease(t *testing.T) {
	last := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	values := []float64{10, 11, 12}
	halfWidths := []float64{1, 2, 3}

	points := buildPoints(last, models.FreqMonthly, 0.95, values, halfWidths)
	require.Len(t, points, 3)

	prev := last
	for i, p := range points {
		assert.True(t, p.Date.After(prev), "date %d not after previous", i)
		assert.LessOrEqual(t, p.LowerBound, p.Value)
		assert.LessOrEqual(t, p.Value, p.UpperBound)
		assert.Equal(t, 0.95, p.Confidence)
		prev = p.Date
	}
	assert.InDelta(t, 9, points[0].LowerBound, 1e-9)
	assert.InDelta(t, 11, points[0].UpperBound, 1e-9)
}
