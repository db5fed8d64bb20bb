package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/forecaster"
	"FinCast/internal/services/seasonal"
	"FinCast/pkg/cache"
	"FinCast/pkg/logger"
)

type fakeSeries struct {
	mu     sync.Mutex
	points []models.SeriesPoint
	err    error
	calls  int
}

func (f *fakeSeries) FetchSeries(_ context.Context, _, _ string, _ models.MetricType, _ *models.DateRange) ([]models.SeriesPoint, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

type fakeBenchmarks struct {
	points []models.SeriesPoint
	err    error
}

func (f *fakeBenchmarks) FetchBenchmark(_ context.Context, _ models.MetricType, _ string) ([]models.SeriesPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.points, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*models.PredictionResult
}

func (f *fakePublisher) PublishResult(_ context.Context, res *models.PredictionResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, res)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeMetrics struct {
	mu          sync.Mutex
	predictions map[string]int
	cacheEvents map[string]int
	failures    map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		predictions: make(map[string]int),
		cacheEvents: make(map[string]int),
		failures:    make(map[string]int),
	}
}

func (f *fakeMetrics) RecordPrediction(_, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predictions[outcome]++
}

func (f *fakeMetrics) RecordModelDuration(string, float64) {}

func (f *fakeMetrics) RecordModelFailure(model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[model]++
}

func (f *fakeMetrics) RecordCacheEvent(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cacheEvents[event]++
}

func (f *fakeMetrics) RecordQueueDepth(int) {}

func (f *fakeMetrics) count(m map[string]int, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[key]
}

// failingForecaster always errors during training.
type failingForecaster struct{}

func (failingForecaster) Kind() domsvc.ModelKind { return "failing" }
func (failingForecaster) MinHistory() int        { return 1 }
func (failingForecaster) Train(context.Context, []models.SeriesPoint, models.Frequency) (domsvc.TrainedModel, error) {
	return nil, fmt.Errorf("failing: %w: synthetic", models.ErrModelTraining)
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func monthlyHistory(n int) []models.SeriesPoint {
	pattern := []float64{1.2, 0.9, 1.05, 0.85, 1.3, 1.0, 0.95, 1.1, 0.8, 1.05, 0.9, 0.9}
	start := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.SeriesPoint, n)
	for i := range out {
		out[i] = models.SeriesPoint{
			Date:  start.AddDate(0, i, 0),
			Value: (1000 + 5*float64(i)) * pattern[i%12],
		}
	}
	return out
}

type orchFixture struct {
	orch      *Orchestrator
	series    *fakeSeries
	metrics   *fakeMetrics
	publisher *fakePublisher
	cache     *cache.MemoryCache
}

func newFixture(t *testing.T, forecasters []domsvc.Forecaster, history []models.SeriesPoint) *orchFixture {
	t.Helper()
	f := &orchFixture{
		series:    &fakeSeries{points: history},
		metrics:   newFakeMetrics(),
		publisher: &fakePublisher{},
		cache:     cache.NewMemoryCache(),
	}
	f.orch = NewOrchestrator(
		DefaultOrchestratorConfig(),
		f.series,
		&fakeBenchmarks{points: monthlyHistory(24)},
		f.publisher,
		f.metrics,
		f.cache,
		testLogger(t),
		forecasters,
		seasonal.NewDecomposer(),
	)
	return f
}

func trendOnly() []domsvc.Forecaster {
	return []domsvc.Forecaster{forecaster.NewTrendForecaster(forecaster.DefaultTrendConfig())}
}

func validRequest() *models.PredictionRequest {
	return &models.PredictionRequest{
		MetricType:      models.MetricCashFlow,
		TenantID:        "tenant-1",
		ClientID:        "client-1",
		Horizon:         6,
		Frequency:       models.FreqMonthly,
		ConfidenceLevel: 0.95,
	}
}

func TestPredictValidationFailsFast(t *testing.T) {
	fix := newFixture(t, trendOnly(), monthlyHistory(48))

	cases := []struct {
		name   string
		mutate func(r *models.PredictionRequest)
	}{
		{"unknown metric", func(r *models.PredictionRequest) { r.MetricType = "stonks" }},
		{"missing tenant", func(r *models.PredictionRequest) { r.TenantID = "" }},
		{"zero horizon", func(r *models.PredictionRequest) { r.Horizon = 0 }},
		{"excess horizon", func(r *models.PredictionRequest) { r.Horizon = 500 }},
		{"bad frequency", func(r *models.PredictionRequest) { r.Frequency = "hourly" }},
		{"bad scenario", func(r *models.PredictionRequest) {
			r.Scenarios = []models.ScenarioDefinition{{Name: "s", Steps: 0}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(req)
			_, err := fix.orch.Predict(context.Background(), req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidRequest))
		})
	}

	req := validRequest()
	req.ConfidenceLevel = 0.93
	_, err := fix.orch.Predict(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidConfidenceLevel))

	assert.Equal(t, 0, fix.series.calls, "rejected requests must not touch the data source")
	assert.Equal(t, 7, fix.metrics.count(fix.metrics.predictions, "rejected"))
}

func TestPredictNilRequest(t *testing.T) {
	fix := newFixture(t, trendOnly(), monthlyHistory(48))

	res, err := fix.orch.Predict(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))
	assert.Nil(t, res)
	assert.Equal(t, 0, fix.series.calls)
	assert.Equal(t, 1, fix.metrics.count(fix.metrics.predictions, "rejected"))
}

func TestPredictDataUnavailable(t *testing.T) {
	fix := newFixture(t, trendOnly(), nil)
	fix.series.err = models.ErrDataUnavailable

	_, err := fix.orch.Predict(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDataUnavailable))
	assert.Equal(t, 1, fix.metrics.count(fix.metrics.predictions, "failed"))
}

func TestPredictHappyPath(t *testing.T) {
	forecasters := []domsvc.Forecaster{
		forecaster.NewTrendForecaster(forecaster.DefaultTrendConfig()),
		forecaster.NewSmoothingForecaster(forecaster.DefaultSmoothingConfig()),
	}
	fix := newFixture(t, forecasters, monthlyHistory(48))

	req := validRequest()
	req.IncludeSeasonality = true
	req.IncludeBenchmarks = true
	req.Scenarios = []models.ScenarioDefinition{
		{Name: "base", Drift: 0.01, Volatility: 0.05, Steps: 6},
	}

	res, err := fix.orch.Predict(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, models.MetricCashFlow, res.Type)
	assert.InDelta(t, 0.95, res.ConfidenceLevel, 1e-12)
	require.Len(t, res.Predictions, 6)

	prev := time.Time{}
	for _, p := range res.Predictions {
		assert.True(t, p.Date.After(prev))
		prev = p.Date
		assert.LessOrEqual(t, p.LowerBound, p.Value)
		assert.LessOrEqual(t, p.Value, p.UpperBound)
	}

	assert.NotEmpty(t, res.SeasonalFactors)
	require.Len(t, res.Scenarios, 1)
	assert.Equal(t, "base", res.Scenarios[0].ScenarioName)
	assert.NotNil(t, res.BenchmarkComparison)

	assert.Equal(t, "fincast-1", res.Metadata.ModelVersion)
	assert.False(t, res.Metadata.TrainedAt.IsZero())
	assert.Contains(t, res.Metadata.FeaturesUsed, "volatility")

	fix.publisher.mu.Lock()
	published := len(fix.publisher.published)
	fix.publisher.mu.Unlock()
	assert.Equal(t, 1, published)

	assert.Equal(t, 1, fix.metrics.count(fix.metrics.cacheEvents, "miss"))

	// the same request again hits the seasonal cache
	_, err = fix.orch.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, fix.metrics.count(fix.metrics.cacheEvents, "hit"))
	assert.Equal(t, 2, fix.metrics.count(fix.metrics.predictions, "success"))
}

func TestPredictDegradesWhenOneModelFails(t *testing.T) {
	forecasters := []domsvc.Forecaster{
		failingForecaster{},
		forecaster.NewTrendForecaster(forecaster.DefaultTrendConfig()),
	}
	fix := newFixture(t, forecasters, monthlyHistory(48))

	res, err := fix.orch.Predict(context.Background(), validRequest())
	require.NoError(t, err)
	require.Len(t, res.Predictions, 6)
	assert.Equal(t, 1, fix.metrics.count(fix.metrics.failures, "failing"))
}

func TestPredictFailsWhenAllModelsFail(t *testing.T) {
	fix := newFixture(t, []domsvc.Forecaster{failingForecaster{}}, monthlyHistory(48))

	_, err := fix.orch.Predict(context.Background(), validRequest())
	require.Error(t, err)

	var pfe *models.PredictionFailedError
	require.True(t, errors.As(err, &pfe))
	require.NotEmpty(t, pfe.Causes)
	assert.True(t, errors.Is(pfe.Causes[0], models.ErrModelTraining))
}

func TestPredictBenchmarkDegrades(t *testing.T) {
	fix := newFixture(t, trendOnly(), monthlyHistory(48))
	fix.orch.benchmarks = &fakeBenchmarks{err: errors.New("upstream down")}

	req := validRequest()
	req.IncludeBenchmarks = true

	res, err := fix.orch.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.BenchmarkComparison)
}

func TestSeasonalCacheCorruptionRecovers(t *testing.T) {
	fix := newFixture(t, trendOnly(), monthlyHistory(48))

	req := validRequest()
	req.IncludeSeasonality = true

	// normalization preserves an already sorted, unique history, so the
	// fingerprint of the stored entry matches the pipeline's
	key := seasonal.Fingerprint(req.TenantID, req.ClientID, req.Frequency, monthlyHistory(48))
	stale := cachedSeasonality{Key: "seasonal:someone-else", Mode: seasonal.Multiplicative}
	require.NoError(t, fix.cache.Set(context.Background(), key, stale, time.Hour))

	res, err := fix.orch.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, res.SeasonalFactors, "factors must be recomputed after dropping the bad entry")
	assert.Equal(t, 1, fix.metrics.count(fix.metrics.cacheEvents, "corrupt"))

	// the recomputed entry replaced the corrupt one
	var entry cachedSeasonality
	require.NoError(t, fix.cache.Get(context.Background(), key, &entry))
	assert.Equal(t, key, entry.Key)
}

func TestNormalizeSeries(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 1, 0)
	d3 := d1.AddDate(0, 2, 0)

	out := normalizeSeries([]models.SeriesPoint{
		{Date: d3, Value: 3},
		{Date: d1, Value: 1},
		{Date: d2, Value: 2},
		{Date: d2, Value: 20}, // duplicate date, last wins
	})

	require.Len(t, out, 3)
	assert.Equal(t, 1.0, out[0].Value)
	assert.Equal(t, 20.0, out[1].Value)
	assert.Equal(t, 3.0, out[2].Value)
}

func TestClampBounds(t *testing.T) {
	points := []models.PredictionPoint{
		{Value: 10, LowerBound: 15, UpperBound: 5},  // flipped interval
		{Value: 30, LowerBound: 12, UpperBound: 20}, // value above interval
	}
	clampBounds(points)

	assert.Equal(t, 5.0, points[0].LowerBound)
	assert.Equal(t, 15.0, points[0].UpperBound)
	assert.Equal(t, 30.0, points[1].UpperBound)
}

func TestCoalesceKeyDistinguishesRequests(t *testing.T) {
	a := validRequest()
	b := validRequest()
	assert.Equal(t, coalesceKey(a), coalesceKey(b))

	b.Horizon = 12
	assert.NotEqual(t, coalesceKey(a), coalesceKey(b))

	c := validRequest()
	c.Range = &models.DateRange{
		From: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.NotEqual(t, coalesceKey(a), coalesceKey(c))

	// a scenario request must not share a flight with a plain one
	d := validRequest()
	d.Scenarios = []models.ScenarioDefinition{{Name: "stress", Drift: -0.05, Volatility: 0.2, Steps: 6}}
	assert.NotEqual(t, coalesceKey(a), coalesceKey(d))

	e := validRequest()
	e.Scenarios = []models.ScenarioDefinition{{Name: "stress", Drift: -0.05, Volatility: 0.2, Steps: 6}}
	assert.Equal(t, coalesceKey(d), coalesceKey(e))

	e.Scenarios[0].Volatility = 0.3
	assert.NotEqual(t, coalesceKey(d), coalesceKey(e))

	f := validRequest()
	f.IncludeBenchmarks = true
	assert.NotEqual(t, coalesceKey(a), coalesceKey(f))
}
