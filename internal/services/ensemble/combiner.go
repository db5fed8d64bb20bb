package ensemble

import (
	"fmt"
	"math"
	"sort"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

// MemberForecast is one strategy's contribution to the ensemble.
type MemberForecast struct {
	Kind   domsvc.ModelKind
	Points []models.PredictionPoint
	MSE    float64
}

// Combiner averages member forecasts point by point. When every member
// reports a positive backtest error the average is weighted by inverse
// error, otherwise members weigh equally.
type Combiner struct {
	weighted bool
}

type Option func(*Combiner)

// WithInverseErrorWeights weights members by 1/MSE when available.
func WithInverseErrorWeights() Option {
	return func(c *Combiner) { c.weighted = true }
}

func NewCombiner(opts ...Option) *Combiner {
	c := &Combiner{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Combine merges member forecasts into a single series. The result is
// truncated to the shortest member so every output point averages the
// same set of strategies. A single member passes through unchanged.
func (c *Combiner) Combine(members []MemberForecast) ([]models.PredictionPoint, error) {
	members = nonEmpty(members)
	if len(members) == 0 {
		return nil, fmt.Errorf("ensemble: %w: no successful strategies to combine", models.ErrModelTraining)
	}
	if len(members) == 1 {
		return members[0].Points, nil
	}

	horizon := members[0].Points
	for _, m := range members[1:] {
		if len(m.Points) < len(horizon) {
			horizon = m.Points
		}
	}

	weights := c.memberWeights(members)

	out := make([]models.PredictionPoint, len(horizon))
	for i := range horizon {
		var value, lower, upper float64
		for j, m := range members {
			value += weights[j] * m.Points[i].Value
			lower += weights[j] * m.Points[i].LowerBound
			upper += weights[j] * m.Points[i].UpperBound
		}
		out[i] = models.PredictionPoint{
			Date:       horizon[i].Date,
			Value:      value,
			LowerBound: lower,
			UpperBound: upper,
			Confidence: horizon[i].Confidence,
		}
	}
	return out, nil
}

// memberWeights returns normalized weights summing to 1.
func (c *Combiner) memberWeights(members []MemberForecast) []float64 {
	weights := make([]float64, len(members))
	if c.weighted {
		usable := true
		for _, m := range members {
			if m.MSE <= 0 || math.IsNaN(m.MSE) || math.IsInf(m.MSE, 0) {
				usable = false
				break
			}
		}
		if usable {
			var total float64
			for i, m := range members {
				weights[i] = 1 / m.MSE
				total += weights[i]
			}
			for i := range weights {
				weights[i] /= total
			}
			return weights
		}
	}
	equal := 1 / float64(len(members))
	for i := range weights {
		weights[i] = equal
	}
	return weights
}

func nonEmpty(members []MemberForecast) []MemberForecast {
	kept := members[:0:0]
	for _, m := range members {
		if len(m.Points) > 0 {
			kept = append(kept, m)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Kind < kept[j].Kind })
	return kept
}
