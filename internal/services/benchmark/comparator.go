// Package benchmark relates a tenant's forecast to external reference
// series such as industry aggregates.
package benchmark

import (
	"fmt"
	"math"
	"sort"

	"FinCast/internal/domain/models"
)

// Comparator scores a forecast against benchmark observations.
type Comparator struct{}

func NewComparator() *Comparator { return &Comparator{} }

// Compare computes the forecast's mean growth relative to the
// benchmark's mean growth and where the forecast's terminal growth
// falls in the benchmark's growth distribution.
func (c *Comparator) Compare(forecast []models.PredictionPoint, reference []models.SeriesPoint) (*models.BenchmarkComparison, error) {
	if len(forecast) < 2 {
		return nil, fmt.Errorf("%w: forecast too short to benchmark", models.ErrInvalidRequest)
	}
	if len(reference) < 2 {
		return nil, fmt.Errorf("%w: no benchmark observations", models.ErrDataUnavailable)
	}

	forecastGrowth := growthRate(forecast[0].Value, forecast[len(forecast)-1].Value, len(forecast))
	refGrowths := make([]float64, 0, len(reference)-1)
	for i := 1; i < len(reference); i++ {
		if reference[i-1].Value == 0 {
			continue
		}
		refGrowths = append(refGrowths, reference[i].Value/reference[i-1].Value-1)
	}
	if len(refGrowths) == 0 {
		return nil, fmt.Errorf("%w: benchmark series is degenerate", models.ErrDataUnavailable)
	}

	refMean := mean(refGrowths)

	cmp := &models.BenchmarkComparison{
		PercentileRank: rankWithin(refGrowths, forecastGrowth),
	}
	if refMean != 0 {
		cmp.RelativePerformance = forecastGrowth / refMean
	} else if forecastGrowth == 0 {
		cmp.RelativePerformance = 1
	} else {
		cmp.RelativePerformance = math.Inf(sign(forecastGrowth))
		cmp.Notes = append(cmp.Notes, "benchmark mean growth is zero")
	}
	cmp.Notes = append(cmp.Notes, describe(cmp.PercentileRank))
	return cmp, nil
}

// growthRate is the average per-step growth between first and last.
func growthRate(first, last float64, steps int) float64 {
	if first == 0 || steps < 2 {
		return 0
	}
	total := last/first - 1
	return total / float64(steps-1)
}

// rankWithin returns the fraction of samples at or below v, in [0, 100].
func rankWithin(samples []float64, v float64) float64 {
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	below := sort.SearchFloat64s(sorted, v)
	// count ties as below
	for below < len(sorted) && sorted[below] == v {
		below++
	}
	return 100 * float64(below) / float64(len(sorted))
}

func describe(rank float64) string {
	switch {
	case rank >= 75:
		return "forecast growth in the top quartile of benchmark growth"
	case rank >= 50:
		return "forecast growth above the benchmark median"
	case rank >= 25:
		return "forecast growth below the benchmark median"
	default:
		return "forecast growth in the bottom quartile of benchmark growth"
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
