package seasonal

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

func monthly(n int, valueAt func(i int) float64) []models.SeriesPoint {
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.SeriesPoint, n)
	for i := range out {
		out[i] = models.SeriesPoint{Date: start.AddDate(0, i, 0), Value: valueAt(i)}
	}
	return out
}

func TestDecomposeInsufficientHistory(t *testing.T) {
	d := NewDecomposer()
	_, err := d.Decompose(monthly(20, func(i int) float64 { return 100 }), models.FreqMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientHistory))
}

func TestDecomposeMultiplicativeFactorsAverageToOne(t *testing.T) {
	multipliers := []float64{1.3, 0.8, 1.1, 0.9, 1.2, 0.7, 1.0, 1.05, 0.95, 1.15, 0.85, 1.0}
	series := monthly(48, func(i int) float64 {
		return 1000 * multipliers[i%12]
	})

	d := NewDecomposer()
	dec, err := d.Decompose(series, models.FreqMonthly)
	require.NoError(t, err)
	assert.Equal(t, Multiplicative, dec.Mode)

	var sum float64
	var count int
	for _, f := range dec.Factors {
		if f.PeriodType != models.PeriodMonthly {
			continue
		}
		sum += f.Multiplier
		count++
	}
	require.Equal(t, 12, count)
	assert.InDelta(t, 1.0, sum/float64(count), 1e-3)

	// January carries the biggest multiplier in the input, so its
	// derived factor should exceed February's
	jan := dec.FactorAt(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), models.FreqMonthly)
	feb := dec.FactorAt(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), models.FreqMonthly)
	assert.Greater(t, jan, feb)
}

func TestDecomposeAdditiveOffsetsSumToZero(t *testing.T) {
	offsets := []float64{30, -10, 5, -25, 40, 0, -15, 20, -30, 10, -5, -20}
	series := monthly(36, func(i int) float64 {
		return 500 + offsets[i%12]
	})

	d := NewDecomposer(WithMode(Additive))
	dec, err := d.Decompose(series, models.FreqMonthly)
	require.NoError(t, err)
	assert.Equal(t, Additive, dec.Mode)

	var sum float64
	for _, f := range dec.Factors {
		if f.PeriodType == models.PeriodMonthly {
			sum += f.Multiplier
		}
	}
	assert.InDelta(t, 0.0, sum, 1e-6)
}

func TestDecomposeOutputLengths(t *testing.T) {
	series := monthly(30, func(i int) float64 { return 100 + float64(i) })
	d := NewDecomposer()
	dec, err := d.Decompose(series, models.FreqMonthly)
	require.NoError(t, err)

	assert.Len(t, dec.Trend, 30)
	assert.Len(t, dec.Seasonal, 30)
	assert.Len(t, dec.Residual, 30)
	for _, v := range dec.Trend {
		assert.False(t, math.IsNaN(v))
	}
}

func TestDecomposeHolidayFactors(t *testing.T) {
	cal := NewCalendar([]Holiday{{Name: "New Year", Month: 1, Day: 1}})
	series := monthly(24, func(i int) float64 {
		v := 100.0
		if i%12 == 0 { // the January points fall on Jan 1
			v = 150
		}
		return v
	})

	d := NewDecomposer(WithCalendar(cal))
	dec, err := d.Decompose(series, models.FreqMonthly)
	require.NoError(t, err)

	var holiday *models.SeasonalFactor
	for i := range dec.Factors {
		if dec.Factors[i].PeriodType == models.PeriodHoliday {
			holiday = &dec.Factors[i]
		}
	}
	require.NotNil(t, holiday, "expected a holiday factor for Jan 1")
	assert.Equal(t, 101, holiday.Index)
	assert.Greater(t, holiday.Multiplier, 1.0)
}

func TestFactorAtNeutralWhenUnmatched(t *testing.T) {
	dec := &Decomposition{Mode: Multiplicative}
	assert.Equal(t, 1.0, dec.FactorAt(time.Now(), models.FreqMonthly))

	dec = &Decomposition{Mode: Additive}
	assert.Equal(t, 0.0, dec.FactorAt(time.Now(), models.FreqMonthly))
}

func TestFingerprintScopedPerTenant(t *testing.T) {
	series := monthly(3, func(i int) float64 { return float64(i) })

	a := Fingerprint("tenant-a", "client-1", models.FreqMonthly, series)
	b := Fingerprint("tenant-b", "client-1", models.FreqMonthly, series)
	assert.NotEqual(t, a, b)

	c := Fingerprint("tenant-a", "client-2", models.FreqMonthly, series)
	assert.NotEqual(t, a, c)
}

func TestFingerprintSensitiveToContent(t *testing.T) {
	series := monthly(3, func(i int) float64 { return float64(i) })
	changed := monthly(3, func(i int) float64 { return float64(i) })
	changed[1].Value += 0.0001

	a := Fingerprint("t", "c", models.FreqMonthly, series)
	b := Fingerprint("t", "c", models.FreqMonthly, changed)
	assert.NotEqual(t, a, b)
}

func TestFingerprintStable(t *testing.T) {
	series := monthly(5, func(i int) float64 { return 10 * float64(i) })

	a := Fingerprint("t", "c", models.FreqMonthly, series)
	b := Fingerprint("t", "c", models.FreqMonthly, series)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "seasonal:")
	assert.Len(t, a, len("seasonal:")+64)
}
