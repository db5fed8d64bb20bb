// Package scenario runs Monte Carlo simulations over forecast
// baselines to explore outcome distributions under drift and
// volatility assumptions.
package scenario

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"FinCast/internal/domain/models"
)

const (
	// DefaultPaths is the number of simulated paths per scenario.
	DefaultPaths = 1000
	// RetainedPaths caps how many raw paths are kept on the result.
	RetainedPaths = 100
)

// ShockFunc draws one random per-step shock. The default is a normal
// draw scaled by the scenario volatility.
type ShockFunc func(rng *rand.Rand, volatility float64) float64

// NormalShock scales a standard normal draw by the volatility.
func NormalShock(rng *rand.Rand, volatility float64) float64 {
	return rng.NormFloat64() * volatility
}

// Simulator generates multiplicative random walks from a starting
// value. Runs with equal seeds produce identical output.
type Simulator struct {
	paths int
	seed  int64
	shock ShockFunc
}

type Option func(*Simulator)

func WithPaths(n int) Option {
	return func(s *Simulator) {
		if n > 0 {
			s.paths = n
		}
	}
}

func WithSeed(seed int64) Option {
	return func(s *Simulator) { s.seed = seed }
}

func WithShock(fn ShockFunc) Option {
	return func(s *Simulator) {
		if fn != nil {
			s.shock = fn
		}
	}
}

func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		paths: DefaultPaths,
		seed:  1,
		shock: NormalShock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run simulates one scenario from the given starting value. The step
// recursion is next = prev * (1 + drift + shock). Statistics cover the
// terminal value of every path; at most RetainedPaths raw paths are
// kept on the result, dated from the step after start.
func (s *Simulator) Run(ctx context.Context, def models.ScenarioDefinition, start float64, startDate time.Time, freq models.Frequency) (*models.ScenarioResult, error) {
	if def.Steps <= 0 {
		return nil, fmt.Errorf("%w: scenario %q has non-positive steps", models.ErrInvalidRequest, def.Name)
	}
	if def.Volatility < 0 {
		return nil, fmt.Errorf("%w: scenario %q has negative volatility", models.ErrInvalidRequest, def.Name)
	}

	dates := make([]time.Time, def.Steps)
	for t := 0; t < def.Steps; t++ {
		dates[t] = freq.Next(startDate, t+1)
	}

	rng := rand.New(rand.NewSource(s.seed))
	terminal := make([]float64, s.paths)
	retained := make([][]models.SeriesPoint, 0, RetainedPaths)

	for p := 0; p < s.paths; p++ {
		if p%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		keep := p < RetainedPaths
		var path []models.SeriesPoint
		if keep {
			path = make([]models.SeriesPoint, def.Steps)
		}
		prev := start
		for t := 0; t < def.Steps; t++ {
			prev *= 1 + def.Drift + s.shock(rng, def.Volatility)
			if keep {
				path[t] = models.SeriesPoint{Date: dates[t], Value: prev}
			}
		}
		terminal[p] = prev
		if keep {
			retained = append(retained, path)
		}
	}

	return &models.ScenarioResult{
		ScenarioName: def.Name,
		Statistics:   summarize(terminal),
		SamplePaths:  retained,
	}, nil
}

// RunAll executes every scenario definition in order.
func (s *Simulator) RunAll(ctx context.Context, defs []models.ScenarioDefinition, start float64, startDate time.Time, freq models.Frequency) ([]models.ScenarioResult, error) {
	results := make([]models.ScenarioResult, 0, len(defs))
	for _, def := range defs {
		r, err := s.Run(ctx, def, start, startDate, freq)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, nil
}

func summarize(terminal []float64) models.ScenarioStatistics {
	sorted := append([]float64(nil), terminal...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	var varSum float64
	for _, v := range sorted {
		d := v - mean
		varSum += d * d
	}

	return models.ScenarioStatistics{
		Mean:   mean,
		Median: percentile(sorted, 0.5),
		Std:    math.Sqrt(varSum / float64(len(sorted))),
		Percentiles: models.ScenarioPercentiles{
			P5:  percentile(sorted, 0.05),
			P25: percentile(sorted, 0.25),
			P75: percentile(sorted, 0.75),
			P95: percentile(sorted, 0.95),
		},
	}
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
