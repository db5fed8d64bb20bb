package seasonal

import (
	"time"

	"FinCast/internal/domain/models"
)

// Mode selects how seasonal effects combine with the trend.
type Mode string

const (
	Multiplicative Mode = "multiplicative"
	Additive       Mode = "additive"
)

// Decomposition is the output of one classical decomposition pass.
type Decomposition struct {
	Trend    []float64
	Seasonal []float64
	Residual []float64
	Factors  []models.SeasonalFactor
	Mode     Mode
}

// Decomposer splits a series into trend, seasonal, and residual
// components and derives calendar-position indices from the seasonal
// part. Decompose is a pure function of its input; callers own caching.
type Decomposer struct {
	mode     Mode
	calendar *Calendar
}

// Option configures a Decomposer.
type Option func(*Decomposer)

// WithMode sets multiplicative or additive decomposition.
func WithMode(m Mode) Option {
	return func(d *Decomposer) { d.mode = m }
}

// WithCalendar attaches a holiday calendar.
func WithCalendar(c *Calendar) Option {
	return func(d *Decomposer) { d.calendar = c }
}

// NewDecomposer creates a decomposer, multiplicative by default.
func NewDecomposer(opts ...Option) *Decomposer {
	d := &Decomposer{mode: Multiplicative}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decompose runs classical decomposition: centered moving average over
// one full cycle for the trend, per-calendar-position averaging of
// deviations for the seasonal indices, holiday one-off factors last.
// Needs at least two full cycles of history.
func (d *Decomposer) Decompose(series []models.SeriesPoint, freq models.Frequency) (*Decomposition, error) {
	cycle := cycleLength(freq)
	if len(series) < 2*cycle {
		return nil, models.ErrInsufficientHistory
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}

	trend := centeredMovingAverage(values, cycle)

	detrended := make([]float64, len(values))
	for i := range values {
		if d.mode == Multiplicative {
			if trend[i] != 0 {
				detrended[i] = values[i] / trend[i]
			} else {
				detrended[i] = 1
			}
		} else {
			detrended[i] = values[i] - trend[i]
		}
	}

	factors := d.calendarFactors(series, detrended, freq)

	seasonal := make([]float64, len(values))
	for i, p := range series {
		seasonal[i] = d.factorFor(factors, p.Date, freq)
	}

	residual := make([]float64, len(values))
	for i := range values {
		if d.mode == Multiplicative {
			denom := trend[i] * seasonal[i]
			if denom != 0 {
				residual[i] = values[i] / denom
			} else {
				residual[i] = 1
			}
		} else {
			residual[i] = values[i] - trend[i] - seasonal[i]
		}
	}

	return &Decomposition{
		Trend:    trend,
		Seasonal: seasonal,
		Residual: residual,
		Factors:  factors,
		Mode:     d.mode,
	}, nil
}

// calendarFactors averages detrended deviations by calendar position and
// normalizes each complete cycle (multipliers average to 1, additive
// offsets to 0). Holiday dates contribute separate one-off factors.
func (d *Decomposer) calendarFactors(series []models.SeriesPoint, detrended []float64, freq models.Frequency) []models.SeasonalFactor {
	var factors []models.SeasonalFactor

	switch freq {
	case models.FreqMonthly:
		factors = append(factors, d.groupByPosition(series, detrended, models.PeriodMonthly, 12, func(t time.Time) int {
			return int(t.Month()) - 1
		})...)
	default:
		factors = append(factors, d.groupByPosition(series, detrended, models.PeriodWeekly, 7, func(t time.Time) int {
			return int(t.Weekday())
		})...)
	}

	if d.calendar.Len() > 0 {
		factors = append(factors, d.holidayFactors(series, detrended)...)
	}
	return factors
}

func (d *Decomposer) groupByPosition(series []models.SeriesPoint, detrended []float64, pt models.SeasonalPeriodType, positions int, posOf func(time.Time) int) []models.SeasonalFactor {
	sums := make([]float64, positions)
	counts := make([]int, positions)
	for i, p := range series {
		pos := posOf(p.Date)
		sums[pos] += detrended[i]
		counts[pos]++
	}

	neutral := 1.0
	if d.mode == Additive {
		neutral = 0
	}

	idx := make([]float64, positions)
	for i := range idx {
		if counts[i] > 0 {
			idx[i] = sums[i] / float64(counts[i])
		} else {
			idx[i] = neutral
		}
	}
	normalize(idx, d.mode)

	out := make([]models.SeasonalFactor, positions)
	for i := range idx {
		out[i] = models.SeasonalFactor{PeriodType: pt, Index: i, Multiplier: idx[i]}
	}
	return out
}

func (d *Decomposer) holidayFactors(series []models.SeriesPoint, detrended []float64) []models.SeasonalFactor {
	type acc struct {
		sum   float64
		count int
	}
	byKey := make(map[int]*acc)
	for i, p := range series {
		if _, ok := d.calendar.Lookup(p.Date); !ok {
			continue
		}
		key := int(p.Date.Month())*100 + p.Date.Day()
		a := byKey[key]
		if a == nil {
			a = &acc{}
			byKey[key] = a
		}
		a.sum += detrended[i]
		a.count++
	}

	out := make([]models.SeasonalFactor, 0, len(byKey))
	for key, a := range byKey {
		out = append(out, models.SeasonalFactor{
			PeriodType: models.PeriodHoliday,
			Index:      key,
			Multiplier: a.sum / float64(a.count),
		})
	}
	return out
}

func (d *Decomposer) factorFor(factors []models.SeasonalFactor, t time.Time, freq models.Frequency) float64 {
	neutral := 1.0
	if d.mode == Additive {
		neutral = 0
	}
	for _, f := range factors {
		switch f.PeriodType {
		case models.PeriodMonthly:
			if freq == models.FreqMonthly && f.Index == int(t.Month())-1 {
				return f.Multiplier
			}
		case models.PeriodWeekly:
			if freq != models.FreqMonthly && f.Index == int(t.Weekday()) {
				return f.Multiplier
			}
		}
	}
	return neutral
}

// FactorAt returns the seasonal factor applying to the given date, or
// the neutral element of the decomposition mode when no factor matches.
func (dec *Decomposition) FactorAt(t time.Time, freq models.Frequency) float64 {
	neutral := 1.0
	if dec.Mode == Additive {
		neutral = 0
	}
	for _, f := range dec.Factors {
		switch f.PeriodType {
		case models.PeriodMonthly:
			if freq == models.FreqMonthly && f.Index == int(t.Month())-1 {
				return f.Multiplier
			}
		case models.PeriodWeekly:
			if freq != models.FreqMonthly && f.Index == int(t.Weekday()) {
				return f.Multiplier
			}
		}
	}
	return neutral
}

// cycleLength is the decomposition window: one full seasonal cycle.
func cycleLength(freq models.Frequency) int {
	if freq == models.FreqMonthly {
		return 12
	}
	return 7
}

// centeredMovingAverage smooths values with a window of one cycle,
// shrinking the window at the edges.
func centeredMovingAverage(values []float64, window int) []float64 {
	n := len(values)
	if window%2 == 0 {
		window++
	}
	half := window / 2

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		start := i - half
		end := i + half + 1
		if start < 0 {
			start = 0
		}
		if end > n {
			end = n
		}
		var sum float64
		for j := start; j < end; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

func normalize(idx []float64, mode Mode) {
	var sum float64
	for _, v := range idx {
		sum += v
	}
	avg := sum / float64(len(idx))
	if mode == Additive {
		for i := range idx {
			idx[i] -= avg
		}
		return
	}
	if avg != 0 {
		for i := range idx {
			idx[i] /= avg
		}
	}
}
