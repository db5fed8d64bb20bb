package forecaster

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

func smallSequenceConfig() SequenceConfig {
	return SequenceConfig{
		Lookback:     5,
		HiddenSize:   8,
		MaxEpochs:    30,
		BatchSize:    8,
		LearningRate: 0.05,
		Dropout:      0.1,
		ValSplit:     0.2,
		Seed:         7,
	}
}

func TestSequenceKind(t *testing.T) {
	f := NewSequenceForecaster(smallSequenceConfig())
	assert.Equal(t, domsvc.KindSequence, f.Kind())
}

func TestSequenceMinHistory(t *testing.T) {
	f := NewSequenceForecaster(smallSequenceConfig())
	assert.Equal(t, 6, f.MinHistory())

	_, err := f.Train(context.Background(), monthlySeries(4, func(i int) float64 { return float64(i) }), models.FreqMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInsufficientHistory))
}

func TestSequenceTrainAndPredict(t *testing.T) {
	series := monthlySeries(60, func(i int) float64 {
		return 500 + 20*math.Sin(2*math.Pi*float64(i)/12)
	})
	f := NewSequenceForecaster(smallSequenceConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	defer model.Dispose()

	points, err := model.Predict(context.Background(), 6, 0.95)
	require.NoError(t, err)
	require.Len(t, points, 6)

	prev := series[len(series)-1].Date
	for _, p := range points {
		assert.True(t, p.Date.After(prev), "dates must strictly increase")
		prev = p.Date
		assert.LessOrEqual(t, p.LowerBound, p.Value)
		assert.LessOrEqual(t, p.Value, p.UpperBound)
		assert.InDelta(t, 0.95, p.Confidence, 1e-12)
		assert.False(t, math.IsNaN(p.Value))
		// forecasts stay in the general range of the training data
		assert.Greater(t, p.Value, 300.0)
		assert.Less(t, p.Value, 700.0)
	}
	assert.GreaterOrEqual(t, model.BacktestMSE(), 0.0)
}

func TestSequenceIntervalWidens(t *testing.T) {
	series := monthlySeries(50, func(i int) float64 {
		return 100 + float64(i) + 3*math.Sin(float64(i))
	})
	f := NewSequenceForecaster(smallSequenceConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	defer model.Dispose()

	points, err := model.Predict(context.Background(), 8, 0.95)
	require.NoError(t, err)

	prev := -1.0
	for _, p := range points {
		width := p.UpperBound - p.LowerBound
		assert.GreaterOrEqual(t, width, prev)
		prev = width
	}
}

func TestSequenceRejectsUnknownConfidence(t *testing.T) {
	series := monthlySeries(30, func(i int) float64 { return float64(i) })
	f := NewSequenceForecaster(smallSequenceConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	defer model.Dispose()

	_, err = model.Predict(context.Background(), 3, 0.93)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfidenceLevel))
}

func TestSequencePredictAfterDispose(t *testing.T) {
	series := monthlySeries(30, func(i int) float64 { return float64(i) })
	f := NewSequenceForecaster(smallSequenceConfig())

	model, err := f.Train(context.Background(), series, models.FreqMonthly)
	require.NoError(t, err)
	model.Dispose()
	model.Dispose() // idempotent

	_, err = model.Predict(context.Background(), 3, 0.95)
	require.Error(t, err)
}

func TestSequenceTrainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	series := monthlySeries(40, func(i int) float64 { return float64(i) })
	f := NewSequenceForecaster(smallSequenceConfig())

	_, err := f.Train(ctx, series, models.FreqMonthly)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestTrainBatchDropoutGradient(t *testing.T) {
	const (
		dropout = 0.5
		lr      = 0.1
		x       = 0.5
		y       = 1.0
	)

	// pick a seed whose single dropout draw keeps the unit active
	seed := int64(-1)
	for s := int64(1); s < 50; s++ {
		if rand.New(rand.NewSource(s)).Float64() >= dropout {
			seed = s
			break
		}
	}
	require.NotEqual(t, int64(-1), seed)

	n := &recurrentNet{
		hidden:  1,
		dropout: dropout,
		rng:     rand.New(rand.NewSource(seed)),
		wx:      []float64{0.4},
		wh:      mat.NewDense(1, 1, []float64{0.2}),
		bh:      []float64{0.1},
		wy:      []float64{0.7},
		by:      0.05,
	}

	// one window of one step: the hand-computed gradients use the raw
	// tanh activation in the derivative, not the dropout-scaled one
	keep := 1 / (1 - dropout)
	v := math.Tanh(0.4*x + 0.1)
	h1 := v * keep
	dy := 0.7*h1 + 0.05 - y
	dz := dy * 0.7 * keep * (1 - v*v)

	n.trainBatch([][]float64{{x}}, []float64{y}, []int{0}, lr)

	assert.InDelta(t, 0.4-lr*dz*x, n.wx[0], 1e-12)
	assert.InDelta(t, 0.1-lr*dz, n.bh[0], 1e-12)
	assert.InDelta(t, 0.7-lr*dy*h1, n.wy[0], 1e-12)
	assert.InDelta(t, 0.05-lr*dy, n.by, 1e-12)
	assert.InDelta(t, 0.2, n.wh.At(0, 0), 1e-12, "no recurrent input on the first step")
}
