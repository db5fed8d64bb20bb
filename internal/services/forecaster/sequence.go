package forecaster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

// SequenceConfig tunes the recurrent sequence strategy.
type SequenceConfig struct {
	Lookback     int
	HiddenSize   int
	MaxEpochs    int
	BatchSize    int
	LearningRate float64
	Dropout      float64
	ValSplit     float64
	Seed         int64
}

// DefaultSequenceConfig returns the tuning used in production.
func DefaultSequenceConfig() SequenceConfig {
	return SequenceConfig{
		Lookback:     60,
		HiddenSize:   24,
		MaxEpochs:    120,
		BatchSize:    32,
		LearningRate: 0.05,
		Dropout:      0.2,
		ValSplit:     0.2,
		Seed:         1,
	}
}

// SequenceForecaster trains a small recurrent network on sliding
// lookback windows and forecasts autoregressively. Values are min-max
// normalized with a scaler fit on the training series.
type SequenceForecaster struct {
	cfg SequenceConfig
}

// NewSequenceForecaster creates the strategy with the given config.
func NewSequenceForecaster(cfg SequenceConfig) *SequenceForecaster {
	if cfg.Lookback <= 0 {
		cfg.Lookback = 60
	}
	if cfg.HiddenSize <= 0 {
		cfg.HiddenSize = 24
	}
	if cfg.MaxEpochs <= 0 {
		cfg.MaxEpochs = 120
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 0.05
	}
	if cfg.ValSplit <= 0 || cfg.ValSplit >= 1 {
		cfg.ValSplit = 0.2
	}
	return &SequenceForecaster{cfg: cfg}
}

func (f *SequenceForecaster) Kind() domsvc.ModelKind { return domsvc.KindSequence }

func (f *SequenceForecaster) MinHistory() int { return f.cfg.Lookback + 1 }

// Train fits the network with early stopping on validation-loss plateau
// and learning-rate reduction on plateau. Cancellation releases all
// buffers before returning.
func (f *SequenceForecaster) Train(ctx context.Context, series []models.SeriesPoint, freq models.Frequency) (domsvc.TrainedModel, error) {
	if len(series) < f.MinHistory() {
		return nil, fmt.Errorf("sequence: %w: have %d points, need %d", models.ErrInsufficientHistory, len(series), f.MinHistory())
	}

	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	scaler := fitScaler(values)
	scaled := scaler.transformAll(values)

	L := f.cfg.Lookback
	numSamples := len(scaled) - L
	xs := make([][]float64, numSamples)
	ys := make([]float64, numSamples)
	for i := 0; i < numSamples; i++ {
		xs[i] = scaled[i : i+L]
		ys[i] = scaled[i+L]
	}

	valStart := numSamples - int(float64(numSamples)*f.cfg.ValSplit)
	if valStart >= numSamples {
		valStart = numSamples - 1
	}
	if valStart < 1 {
		valStart = 1
	}

	net := newRecurrentNet(f.cfg.HiddenSize, f.cfg.Dropout, f.cfg.Seed)

	state := &sequenceModel{
		net:    net,
		scaler: scaler,
		window: append([]float64(nil), scaled[len(scaled)-L:]...),
		last:   series[len(series)-1].Date,
		freq:   freq,
	}

	lr := f.cfg.LearningRate
	bestVal := math.Inf(1)
	plateau := 0
	const (
		minDelta       = 1e-5
		reducePatience = 3
		stopPatience   = 8
		lrFloor        = 1e-4
	)

	for epoch := 0; epoch < f.cfg.MaxEpochs; epoch++ {
		if err := ctx.Err(); err != nil {
			state.Dispose()
			return nil, fmt.Errorf("sequence training cancelled: %w", err)
		}

		net.trainEpoch(xs[:valStart], ys[:valStart], lr, f.cfg.BatchSize)

		val := net.loss(xs[valStart:], ys[valStart:])
		if val < bestVal-minDelta {
			bestVal = val
			plateau = 0
			continue
		}
		plateau++
		if plateau%reducePatience == 0 && lr > lrFloor {
			lr *= 0.5
		}
		if plateau >= stopPatience {
			break
		}
	}

	if math.IsNaN(bestVal) || math.IsInf(bestVal, 0) {
		state.Dispose()
		return nil, fmt.Errorf("sequence: %w: diverged during training", models.ErrModelTraining)
	}

	state.valMSE = bestVal * scaler.spread * scaler.spread
	state.stderr = math.Sqrt(bestVal) * scaler.spread
	return state, nil
}

// sequenceModel is the trained state of one request. Not shared; the
// orchestrator disposes it when the forecast is assembled.
type sequenceModel struct {
	net      *recurrentNet
	scaler   *minMaxScaler
	window   []float64
	last     time.Time
	freq     models.Frequency
	valMSE   float64
	stderr   float64
	disposed bool
}

func (m *sequenceModel) Predict(ctx context.Context, horizon int, confidence float64) ([]models.PredictionPoint, error) {
	if m.disposed {
		return nil, errors.New("sequence: predict on disposed model")
	}
	z, err := ZScore(confidence)
	if err != nil {
		return nil, err
	}

	window := append([]float64(nil), m.window...)
	values := make([]float64, horizon)
	halfWidths := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := m.net.forward(window)
		window = append(window[1:], next)
		values[h] = m.scaler.inverse(next)
		// variance accumulates with the step index
		halfWidths[h] = z * m.stderr * math.Sqrt(float64(h+1))
	}
	return buildPoints(m.last, m.freq, confidence, values, halfWidths), nil
}

func (m *sequenceModel) BacktestMSE() float64 { return m.valMSE }

func (m *sequenceModel) Dispose() {
	if m.disposed {
		return
	}
	m.disposed = true
	m.net.release()
	m.window = nil
}

// recurrentNet is a single-hidden-layer tanh recurrence with inverted
// dropout on the hidden state during training.
type recurrentNet struct {
	hidden  int
	dropout float64
	rng     *rand.Rand

	wx []float64 // input -> hidden
	wh *mat.Dense
	bh []float64
	wy []float64 // hidden -> output
	by float64
}

func newRecurrentNet(hidden int, dropout float64, seed int64) *recurrentNet {
	rng := rand.New(rand.NewSource(seed))
	n := &recurrentNet{
		hidden:  hidden,
		dropout: dropout,
		rng:     rng,
		wx:      make([]float64, hidden),
		wh:      mat.NewDense(hidden, hidden, nil),
		bh:      make([]float64, hidden),
		wy:      make([]float64, hidden),
	}
	scale := 1.0 / math.Sqrt(float64(hidden))
	for i := 0; i < hidden; i++ {
		n.wx[i] = rng.NormFloat64() * scale
		n.wy[i] = rng.NormFloat64() * scale
		for j := 0; j < hidden; j++ {
			n.wh.Set(i, j, rng.NormFloat64()*scale)
		}
	}
	return n
}

// forward runs inference over one window without dropout.
func (n *recurrentNet) forward(xs []float64) float64 {
	h := make([]float64, n.hidden)
	next := make([]float64, n.hidden)
	for _, x := range xs {
		for i := 0; i < n.hidden; i++ {
			pre := n.wx[i]*x + n.bh[i]
			for j := 0; j < n.hidden; j++ {
				pre += n.wh.At(i, j) * h[j]
			}
			next[i] = math.Tanh(pre)
		}
		h, next = next, h
	}
	out := n.by
	for i := 0; i < n.hidden; i++ {
		out += n.wy[i] * h[i]
	}
	return out
}

// trainEpoch runs one epoch of minibatch gradient descent with full
// backpropagation through time.
func (n *recurrentNet) trainEpoch(xs [][]float64, ys []float64, lr float64, batchSize int) {
	order := n.rng.Perm(len(xs))
	for start := 0; start < len(order); start += batchSize {
		end := start + batchSize
		if end > len(order) {
			end = len(order)
		}
		n.trainBatch(xs, ys, order[start:end], lr)
	}
}

func (n *recurrentNet) trainBatch(xs [][]float64, ys []float64, idx []int, lr float64) {
	H := n.hidden
	gwx := make([]float64, H)
	gwh := mat.NewDense(H, H, nil)
	gbh := make([]float64, H)
	gwy := make([]float64, H)
	gby := 0.0

	for _, s := range idx {
		window := xs[s]
		T := len(window)

		// forward pass, keeping pre-mask activations and dropout masks
		hs := make([][]float64, T+1)
		hs[0] = make([]float64, H)
		acts := make([][]float64, T)
		masks := make([][]float64, T)
		for t := 0; t < T; t++ {
			hs[t+1] = make([]float64, H)
			acts[t] = make([]float64, H)
			masks[t] = make([]float64, H)
			for i := 0; i < H; i++ {
				pre := n.wx[i]*window[t] + n.bh[i]
				for j := 0; j < H; j++ {
					pre += n.wh.At(i, j) * hs[t][j]
				}
				v := math.Tanh(pre)
				keep := 1.0
				if n.dropout > 0 {
					if n.rng.Float64() < n.dropout {
						keep = 0
					} else {
						keep = 1.0 / (1.0 - n.dropout)
					}
				}
				acts[t][i] = v
				masks[t][i] = keep
				hs[t+1][i] = v * keep
			}
		}

		yhat := n.by
		for i := 0; i < H; i++ {
			yhat += n.wy[i] * hs[T][i]
		}
		dy := yhat - ys[s]

		gby += dy
		dh := make([]float64, H)
		for i := 0; i < H; i++ {
			gwy[i] += dy * hs[T][i]
			dh[i] = dy * n.wy[i]
		}

		// backpropagation through time
		for t := T - 1; t >= 0; t-- {
			dz := make([]float64, H)
			for i := 0; i < H; i++ {
				// tanh derivative from the activation before the keep scale
				av := acts[t][i]
				dz[i] = dh[i] * masks[t][i] * (1 - av*av)
			}
			dhPrev := make([]float64, H)
			for i := 0; i < H; i++ {
				gwx[i] += dz[i] * window[t]
				gbh[i] += dz[i]
				for j := 0; j < H; j++ {
					gwh.Set(i, j, gwh.At(i, j)+dz[i]*hs[t][j])
					dhPrev[j] += n.wh.At(i, j) * dz[i]
				}
			}
			dh = dhPrev
		}
	}

	step := lr / float64(len(idx))
	for i := 0; i < H; i++ {
		n.wx[i] -= step * clipGrad(gwx[i])
		n.bh[i] -= step * clipGrad(gbh[i])
		n.wy[i] -= step * clipGrad(gwy[i])
		for j := 0; j < H; j++ {
			n.wh.Set(i, j, n.wh.At(i, j)-step*clipGrad(gwh.At(i, j)))
		}
	}
	n.by -= step * clipGrad(gby)
}

// loss computes mean squared error over a sample set without dropout.
func (n *recurrentNet) loss(xs [][]float64, ys []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for i, window := range xs {
		d := n.forward(window) - ys[i]
		sum += d * d
	}
	return sum / float64(len(xs))
}

func (n *recurrentNet) release() {
	n.wx = nil
	n.wh = nil
	n.bh = nil
	n.wy = nil
}

// clipGrad bounds individual gradient components to keep the recurrence
// from exploding on volatile series.
func clipGrad(g float64) float64 {
	const limit = 5.0
	if g > limit {
		return limit
	}
	if g < -limit {
		return -limit
	}
	return g
}
