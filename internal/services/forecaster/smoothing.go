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

// SmoothingConfig tunes the exponential-smoothing strategy. Grid is the
// number of steps searched per smoothing parameter.
type SmoothingConfig struct {
	Grid     int
	Holdout  float64
	MinAlpha float64
	MaxAlpha float64
}

func DefaultSmoothingConfig() SmoothingConfig {
	return SmoothingConfig{Grid: 10, Holdout: 0.2, MinAlpha: 0.05, MaxAlpha: 0.95}
}

// SmoothingForecaster fits additive Holt-Winters smoothing. The alpha,
// beta and gamma parameters are picked by grid search against a
// held-out tail of the series. When the series is too short for a full
// seasonal cycle it degrades to trend-only (Holt) smoothing.
type SmoothingForecaster struct {
	cfg SmoothingConfig
}

func NewSmoothingForecaster(cfg SmoothingConfig) *SmoothingForecaster {
	if cfg.Grid <= 1 {
		cfg.Grid = 10
	}
	if cfg.Holdout <= 0 || cfg.Holdout >= 0.5 {
		cfg.Holdout = 0.2
	}
	if cfg.MinAlpha <= 0 {
		cfg.MinAlpha = 0.05
	}
	if cfg.MaxAlpha <= cfg.MinAlpha || cfg.MaxAlpha >= 1 {
		cfg.MaxAlpha = 0.95
	}
	return &SmoothingForecaster{cfg: cfg}
}

func (f *SmoothingForecaster) Kind() domsvc.ModelKind { return domsvc.KindSmoothing }

func (f *SmoothingForecaster) MinHistory() int { return 10 }

func (f *SmoothingForecaster) Train(ctx context.Context, series []models.SeriesPoint, freq models.Frequency) (domsvc.TrainedModel, error) {
	if len(series) < f.MinHistory() {
		return nil, fmt.Errorf("smoothing: %w: have %d points, need %d", models.ErrInsufficientHistory, len(series), f.MinHistory())
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}

	period := freq.SeasonalPeriod()
	seasonal := period > 1 && len(values) >= 2*period+2

	holdout := int(float64(len(values)) * f.cfg.Holdout)
	if holdout < 1 {
		holdout = 1
	}
	trainLen := len(values) - holdout
	if seasonal && trainLen < 2*period {
		seasonal = false
	}

	step := (f.cfg.MaxAlpha - f.cfg.MinAlpha) / float64(f.cfg.Grid-1)
	bestMSE := math.Inf(1)
	var bestState *hwState

	for a := 0; a < f.cfg.Grid; a++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("smoothing training cancelled: %w", err)
		}
		alpha := f.cfg.MinAlpha + float64(a)*step
		for b := 0; b < f.cfg.Grid; b++ {
			beta := f.cfg.MinAlpha + float64(b)*step
			gammas := []float64{0}
			if seasonal {
				gammas = make([]float64, f.cfg.Grid)
				for g := range gammas {
					gammas[g] = f.cfg.MinAlpha + float64(g)*step
				}
			}
			for _, gamma := range gammas {
				state := runHoltWinters(values[:trainLen], alpha, beta, gamma, period, seasonal)
				if state == nil {
					continue
				}
				mse := holdoutMSE(state, values[trainLen:])
				if mse < bestMSE {
					bestMSE = mse
					bestState = state
				}
			}
		}
	}
	if bestState == nil {
		return nil, fmt.Errorf("smoothing: %w: smoothing diverged on all parameters", models.ErrModelTraining)
	}

	// refit the winning parameters over the full series so forecasts
	// start from the latest observation
	final := runHoltWinters(values, bestState.alpha, bestState.beta, bestState.gamma, period, seasonal)
	if final == nil {
		final = bestState
	}

	return &smoothingModel{
		state:  final,
		mse:    bestMSE,
		stderr: math.Sqrt(bestMSE),
		last:   series[len(series)-1].Date,
		freq:   freq,
	}, nil
}

type smoothingModel struct {
	state    *hwState
	mse      float64
	stderr   float64
	last     time.Time
	freq     models.Frequency
	disposed bool
}

func (m *smoothingModel) Predict(ctx context.Context, horizon int, confidence float64) ([]models.PredictionPoint, error) {
	if m.disposed {
		return nil, errors.New("smoothing: predict on disposed model")
	}
	z, err := ZScore(confidence)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	values := make([]float64, horizon)
	halfWidths := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		values[h] = m.state.forecast(h + 1)
		halfWidths[h] = z * m.stderr * math.Sqrt(float64(h+1))
	}
	return buildPoints(m.last, m.freq, confidence, values, halfWidths), nil
}

func (m *smoothingModel) BacktestMSE() float64 { return m.mse }

func (m *smoothingModel) Dispose() {
	m.disposed = true
	m.state = nil
}

// hwState is the smoothed level, trend and seasonal components after a
// full pass over the series.
type hwState struct {
	alpha, beta, gamma float64
	level, trend       float64
	seasonal           []float64 // empty when trend-only
	observed           int
}

// runHoltWinters runs one smoothing pass. Seasonal indices are
// initialized from the first cycle's deviation around its mean. Returns
// nil when the recursion produces non-finite components.
func runHoltWinters(values []float64, alpha, beta, gamma float64, period int, seasonal bool) *hwState {
	s := &hwState{alpha: alpha, beta: beta, gamma: gamma}

	start := 2
	if seasonal {
		if len(values) < 2*period {
			return nil
		}
		s.seasonal = make([]float64, period)
		var firstMean float64
		for _, v := range values[:period] {
			firstMean += v
		}
		firstMean /= float64(period)
		for i := 0; i < period; i++ {
			s.seasonal[i] = values[i] - firstMean
		}
		s.level = firstMean
		var secondMean float64
		for _, v := range values[period : 2*period] {
			secondMean += v
		}
		secondMean /= float64(period)
		s.trend = (secondMean - firstMean) / float64(period)
		start = period
	} else {
		s.level = values[0]
		s.trend = values[1] - values[0]
	}

	for t := start; t < len(values); t++ {
		v := values[t]
		prevLevel := s.level
		if seasonal {
			idx := t % period
			s.level = alpha*(v-s.seasonal[idx]) + (1-alpha)*(prevLevel+s.trend)
			s.trend = beta*(s.level-prevLevel) + (1-beta)*s.trend
			s.seasonal[idx] = gamma*(v-s.level) + (1-gamma)*s.seasonal[idx]
		} else {
			s.level = alpha*v + (1-alpha)*(prevLevel+s.trend)
			s.trend = beta*(s.level-prevLevel) + (1-beta)*s.trend
		}
		if math.IsNaN(s.level) || math.IsInf(s.level, 0) {
			return nil
		}
	}
	s.observed = len(values)
	return s
}

// forecast projects h steps past the end of the smoothed series.
func (s *hwState) forecast(h int) float64 {
	v := s.level + float64(h)*s.trend
	if len(s.seasonal) > 0 {
		v += s.seasonal[(s.observed+h-1)%len(s.seasonal)]
	}
	return v
}

func holdoutMSE(s *hwState, tail []float64) float64 {
	if len(tail) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i, v := range tail {
		d := s.forecast(i+1) - v
		sum += d * d
	}
	return sum / float64(len(tail))
}
