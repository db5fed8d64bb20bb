package forecaster

import (
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
)

// zTable maps the supported confidence levels to their two-sided normal
// quantiles. Levels outside the table are rejected rather than silently
// substituted with the 95% value.
var zTable = []struct {
	level float64
	z     float64
}{
	{0.68, 1.0},
	{0.80, 1.282},
	{0.90, 1.645},
	{0.95, 1.96},
	{0.99, 2.576},
}

// ZScore resolves a confidence level to its z-value. Unlisted levels fail
// with ErrInvalidConfidenceLevel.
func ZScore(confidence float64) (float64, error) {
	for _, e := range zTable {
		if math.Abs(e.level-confidence) < 1e-9 {
			return e.z, nil
		}
	}
	return 0, fmt.Errorf("%w: %v", models.ErrInvalidConfidenceLevel, confidence)
}

// SupportedConfidence reports whether the level appears in the z-table.
func SupportedConfidence(confidence float64) bool {
	_, err := ZScore(confidence)
	return err == nil
}

// buildPoints assembles forecast points stepping forward from the last
// observed date at the series frequency. halfWidths must match values in
// length.
func buildPoints(last time.Time, freq models.Frequency, confidence float64, values, halfWidths []float64) []models.PredictionPoint {
	out := make([]models.PredictionPoint, len(values))
	for i, v := range values {
		hw := math.Abs(halfWidths[i])
		out[i] = models.PredictionPoint{
			Date:       freq.Next(last, i+1),
			Value:      v,
			LowerBound: v - hw,
			UpperBound: v + hw,
			Confidence: confidence,
		}
	}
	return out
}
