package features

import (
	"gonum.org/v1/gonum/stat"

	"FinCast/internal/domain/models"
)

// Extract derives volatility, trend, and cyclicality signals from a
// series. Pure function; fails with ErrInsufficientHistory below 2 points.
func Extract(series []models.SeriesPoint) (models.FeatureSet, error) {
	if len(series) < 2 {
		return models.FeatureSet{}, models.ErrInsufficientHistory
	}

	values := Values(series)
	slope, intercept := LinearTrend(values)
	cycle := DetectCycle(values, len(values)/2)

	return models.FeatureSet{
		Volatility:     stat.StdDev(values, nil),
		TrendSlope:     slope,
		TrendIntercept: intercept,
		Cyclical:       cycle > 1,
		CycleLength:    cycle,
	}, nil
}

// Values projects a series to its value column.
func Values(series []models.SeriesPoint) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Value
	}
	return out
}

// LinearTrend fits y = slope*x + intercept over the point index.
func LinearTrend(values []float64) (slope, intercept float64) {
	if len(values) < 2 {
		if len(values) == 1 {
			return 0, values[0]
		}
		return 0, 0
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	intercept, slope = stat.LinearRegression(xs, values, nil, false)
	return slope, intercept
}

// Autocorrelation computes lag-k autocorrelations for k in [1, maxLag].
func Autocorrelation(values []float64, maxLag int) []float64 {
	n := len(values)
	if n == 0 || maxLag <= 0 {
		return nil
	}
	mean := stat.Mean(values, nil)

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	if variance == 0 {
		return make([]float64, maxLag)
	}

	acf := make([]float64, maxLag)
	for lag := 1; lag <= maxLag; lag++ {
		var sum float64
		for i := lag; i < n; i++ {
			sum += (values[i] - mean) * (values[i-lag] - mean)
		}
		acf[lag-1] = sum / variance
	}
	return acf
}

// DetectCycle looks for the strongest repeating autocorrelation peak and
// returns its lag, or 1 when no significant cycle exists. The 0.3
// threshold separates genuine seasonality from noise.
func DetectCycle(values []float64, maxLag int) int {
	n := len(values)
	if n < 4 {
		return 1
	}
	if maxLag <= 0 || maxLag > n/2 {
		maxLag = n / 2
	}

	acf := Autocorrelation(values, maxLag)
	best := 1
	bestACF := 0.0
	for lag := 2; lag < maxLag; lag++ {
		// local maximum above threshold
		if acf[lag-1] > acf[lag-2] && acf[lag-1] > acf[lag] && acf[lag-1] > bestACF && acf[lag-1] > 0.3 {
			best = lag
			bestACF = acf[lag-1]
		}
	}
	return best
}
