package forecaster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

// TrendConfig bounds the order search for the autoregressive strategy.
type TrendConfig struct {
	MaxAR   int
	MaxDiff int
	MaxMA   int
}

// DefaultTrendConfig returns the search bounds used in production.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{MaxAR: 3, MaxDiff: 2, MaxMA: 2}
}

// TrendForecaster fits an autoregressive model with differencing and a
// moving-average correction. The order (p, d, q) is selected by grid
// search over the in-sample residual variance.
type TrendForecaster struct {
	cfg TrendConfig
}

func NewTrendForecaster(cfg TrendConfig) *TrendForecaster {
	if cfg.MaxAR <= 0 {
		cfg.MaxAR = 3
	}
	if cfg.MaxDiff < 0 {
		cfg.MaxDiff = 2
	}
	if cfg.MaxMA < 0 {
		cfg.MaxMA = 2
	}
	return &TrendForecaster{cfg: cfg}
}

func (f *TrendForecaster) Kind() domsvc.ModelKind { return domsvc.KindTrend }

func (f *TrendForecaster) MinHistory() int { return f.cfg.MaxAR + f.cfg.MaxDiff + 10 }

func (f *TrendForecaster) Train(ctx context.Context, series []models.SeriesPoint, freq models.Frequency) (domsvc.TrainedModel, error) {
	if len(series) < f.MinHistory() {
		return nil, fmt.Errorf("trend: %w: have %d points, need %d", models.ErrInsufficientHistory, len(series), f.MinHistory())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}

	best := (*arimaFit)(nil)
	for d := 0; d <= f.cfg.MaxDiff; d++ {
		diffed := difference(values, d)
		if len(diffed) <= f.cfg.MaxAR+2 {
			break
		}
		for p := 1; p <= f.cfg.MaxAR; p++ {
			for q := 0; q <= f.cfg.MaxMA; q++ {
				fit, err := fitARIMA(values, diffed, p, d, q)
				if err != nil {
					continue
				}
				if best == nil || fit.residVar < best.residVar {
					best = fit
				}
			}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("trend: %w: no stable order found", models.ErrModelTraining)
	}

	return &trendModel{
		fit:  best,
		last: series[len(series)-1].Date,
		freq: freq,
	}, nil
}

type trendModel struct {
	fit      *arimaFit
	last     time.Time
	freq     models.Frequency
	disposed bool
}

func (m *trendModel) Predict(ctx context.Context, horizon int, confidence float64) ([]models.PredictionPoint, error) {
	if m.disposed {
		return nil, errors.New("trend: predict on disposed model")
	}
	z, err := ZScore(confidence)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := m.fit.forecast(horizon)
	sigma := math.Sqrt(m.fit.residVar)
	halfWidths := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		halfWidths[h] = z * sigma * math.Sqrt(float64(h+1))
	}
	return buildPoints(m.last, m.freq, confidence, values, halfWidths), nil
}

func (m *trendModel) BacktestMSE() float64 { return m.fit.residVar }

func (m *trendModel) Dispose() {
	m.disposed = true
	m.fit = nil
}

// arimaFit holds the fitted coefficients plus the tail state needed to
// roll the recursion forward.
type arimaFit struct {
	p, d, q  int
	arCoeffs []float64
	maCoeffs []float64
	mean     float64
	residVar float64

	// model-order tails, newest last
	diffTail  []float64
	residTail []float64
	origTail  []float64
}

// fitARIMA estimates AR coefficients with Levinson-Durbin on the
// differenced series and derives damped MA terms from the residual
// autocorrelation.
func fitARIMA(original, diffed []float64, p, d, q int) (*arimaFit, error) {
	n := len(diffed)
	if n <= p+q+2 {
		return nil, errors.New("series too short for order")
	}

	mean := meanOf(diffed)
	centered := make([]float64, n)
	for i, v := range diffed {
		centered[i] = v - mean
	}

	ac := autocovariance(centered, p)
	var ar []float64
	if ac[0] <= 1e-12 {
		// constant differenced series: pure drift, no AR structure
		ar = make([]float64, p)
	} else {
		var err error
		ar, err = levinsonDurbin(ac, p)
		if err != nil {
			return nil, err
		}
	}
	for _, c := range ar {
		if math.IsNaN(c) || math.Abs(c) > 10 {
			return nil, errors.New("unstable AR coefficients")
		}
	}

	// one-step in-sample residuals
	resid := make([]float64, 0, n-p)
	for t := p; t < n; t++ {
		pred := 0.0
		for k := 0; k < p; k++ {
			pred += ar[k] * centered[t-1-k]
		}
		resid = append(resid, centered[t]-pred)
	}

	ma := make([]float64, q)
	if q > 0 {
		rc := autocovariance(resid, q)
		if rc[0] > 0 {
			for k := 1; k <= q; k++ {
				// damped to keep the correction conservative
				ma[k-1] = 0.5 * rc[k] / rc[0]
			}
		}
	}

	variance := 0.0
	for t := q; t < len(resid); t++ {
		e := resid[t]
		for k := 0; k < q; k++ {
			e -= ma[k] * resid[t-1-k]
		}
		variance += e * e
	}
	denom := len(resid) - q
	if denom < 1 {
		return nil, errors.New("too few residuals")
	}
	variance /= float64(denom)
	if math.IsNaN(variance) || math.IsInf(variance, 0) {
		return nil, errors.New("degenerate residual variance")
	}

	fit := &arimaFit{
		p: p, d: d, q: q,
		arCoeffs: ar,
		maCoeffs: ma,
		mean:     mean,
		residVar: variance,
	}

	fit.diffTail = append(fit.diffTail, centered[n-p:]...)
	if q > 0 && len(resid) >= q {
		fit.residTail = append(fit.residTail, resid[len(resid)-q:]...)
	} else {
		fit.residTail = make([]float64, q)
	}
	// keep the last d original values for re-integration
	if d > 0 {
		tails := integrationTails(original, d)
		fit.origTail = tails
	}
	return fit, nil
}

// forecast rolls the AR recursion forward, applies the MA correction on
// the first steps, and undoes the differencing.
func (f *arimaFit) forecast(horizon int) []float64 {
	diffHist := append([]float64(nil), f.diffTail...)
	residHist := append([]float64(nil), f.residTail...)

	diffForecast := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		v := 0.0
		for k := 0; k < f.p; k++ {
			v += f.arCoeffs[k] * diffHist[len(diffHist)-1-k]
		}
		for k := 0; k < f.q && k < len(residHist); k++ {
			v += f.maCoeffs[k] * residHist[len(residHist)-1-k]
		}
		diffForecast[h] = v + f.mean
		diffHist = append(diffHist, v)
		if f.q > 0 {
			// future shocks have zero expectation
			residHist = append(residHist, 0)
		}
	}

	return integrate(diffForecast, f.origTail, f.d)
}

// difference applies d rounds of first differencing.
func difference(values []float64, d int) []float64 {
	out := append([]float64(nil), values...)
	for round := 0; round < d; round++ {
		if len(out) < 2 {
			return nil
		}
		next := make([]float64, len(out)-1)
		for i := 1; i < len(out); i++ {
			next[i-1] = out[i] - out[i-1]
		}
		out = next
	}
	return out
}

// integrationTails records the final value of each differencing level,
// ordered from the original series down to the (d-1)-times-differenced
// series.
func integrationTails(values []float64, d int) []float64 {
	tails := make([]float64, d)
	cur := values
	for level := 0; level < d; level++ {
		tails[level] = cur[len(cur)-1]
		cur = difference(cur, 1)
	}
	return tails
}

// integrate undoes d rounds of differencing on a forecast.
func integrate(forecast, tails []float64, d int) []float64 {
	out := append([]float64(nil), forecast...)
	for level := d - 1; level >= 0; level-- {
		acc := tails[level]
		for i := range out {
			acc += out[i]
			out[i] = acc
		}
	}
	return out
}

// levinsonDurbin solves the Yule-Walker equations for AR coefficients.
func levinsonDurbin(ac []float64, p int) ([]float64, error) {
	if ac[0] <= 0 {
		return nil, errors.New("non-positive zero-lag autocovariance")
	}
	phi := make([]float64, p+1)
	prev := make([]float64, p+1)
	e := ac[0]
	for k := 1; k <= p; k++ {
		lambda := ac[k]
		for j := 1; j < k; j++ {
			lambda -= prev[j] * ac[k-j]
		}
		lambda /= e
		phi[k] = lambda
		for j := 1; j < k; j++ {
			phi[j] = prev[j] - lambda*prev[k-j]
		}
		e *= 1 - lambda*lambda
		if e <= 0 {
			return nil, errors.New("prediction error collapsed")
		}
		copy(prev, phi)
	}
	return phi[1 : p+1], nil
}

func autocovariance(values []float64, maxLag int) []float64 {
	n := len(values)
	m := meanOf(values)
	out := make([]float64, maxLag+1)
	for lag := 0; lag <= maxLag; lag++ {
		var sum float64
		for t := lag; t < n; t++ {
			sum += (values[t] - m) * (values[t-lag] - m)
		}
		out[lag] = sum / float64(n)
	}
	return out
}

func meanOf(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
