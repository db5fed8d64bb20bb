package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	domsvc "FinCast/internal/domain/service"
	"FinCast/internal/services/benchmark"
	"FinCast/internal/services/ensemble"
	"FinCast/internal/services/features"
	"FinCast/internal/services/forecaster"
	"FinCast/internal/services/scenario"
	"FinCast/internal/services/seasonal"
	"FinCast/pkg/cache"
	"FinCast/pkg/logger"
	"FinCast/pkg/util"
)

// stage names one step of the prediction pipeline. Transitions are
// strictly forward; a failure at any stage moves to stageFailed.
type stage string

const (
	stageValidated         stage = "validated"
	stageDataFetched       stage = "data_fetched"
	stageFeaturesPrepared  stage = "features_prepared"
	stageSeasonalityDone   stage = "seasonality_computed"
	stageModelsRun         stage = "models_run"
	stageEnsembled         stage = "ensembled"
	stageScenariosRun      stage = "scenarios_run"
	stageBenchmarkCompared stage = "benchmark_compared"
	stageAssembled         stage = "assembled"
	stageFailed            stage = "failed"
)

// OrchestratorConfig tunes the prediction pipeline.
type OrchestratorConfig struct {
	MaxHorizon      int
	SeasonalTTL     time.Duration
	LockTTL         time.Duration
	ModelVersion    string
	Industry        string
	ScenarioSeed    int64
	WeightedAverage bool
}

func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxHorizon:   120,
		SeasonalTTL:  24 * time.Hour,
		LockTTL:      30 * time.Second,
		ModelVersion: "fincast-1",
		Industry:     "general",
		ScenarioSeed: 1,
	}
}

// Orchestrator drives one prediction end to end: validation, history
// fetch, feature preparation, seasonal decomposition, parallel model
// training, ensembling, scenarios and benchmarks. Identical concurrent
// requests are coalesced onto one run.
type Orchestrator struct {
	cfg         OrchestratorConfig
	series      domrepo.SeriesSource
	benchmarks  domrepo.BenchmarkSource
	publisher   domrepo.ResultPublisher
	metrics     domrepo.Metrics
	cache       cache.Service
	log         *logger.Logger
	forecasters []domsvc.Forecaster
	combiner    *ensemble.Combiner
	decomposer  *seasonal.Decomposer
	simulator   *scenario.Simulator
	comparator  *benchmark.Comparator
	flights     *flightGroup
}

func NewOrchestrator(
	cfg OrchestratorConfig,
	series domrepo.SeriesSource,
	benchmarks domrepo.BenchmarkSource,
	publisher domrepo.ResultPublisher,
	metrics domrepo.Metrics,
	cacheSvc cache.Service,
	log *logger.Logger,
	forecasters []domsvc.Forecaster,
	decomposer *seasonal.Decomposer,
) *Orchestrator {
	var opts []ensemble.Option
	if cfg.WeightedAverage {
		opts = append(opts, ensemble.WithInverseErrorWeights())
	}
	if cfg.MaxHorizon <= 0 {
		cfg.MaxHorizon = 120
	}
	if cfg.SeasonalTTL <= 0 {
		cfg.SeasonalTTL = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Orchestrator{
		cfg:         cfg,
		series:      series,
		benchmarks:  benchmarks,
		publisher:   publisher,
		metrics:     metrics,
		cache:       cacheSvc,
		log:         log,
		forecasters: forecasters,
		combiner:    ensemble.NewCombiner(opts...),
		decomposer:  decomposer,
		simulator:   scenario.NewSimulator(scenario.WithSeed(cfg.ScenarioSeed)),
		comparator:  benchmark.NewComparator(),
		flights:     newFlightGroup(),
	}
}

// Predict runs the full pipeline for one request.
func (o *Orchestrator) Predict(ctx context.Context, req *models.PredictionRequest) (*models.PredictionResult, error) {
	if err := o.validate(req); err != nil {
		metric := ""
		if req != nil {
			metric = string(req.MetricType)
		}
		o.metrics.RecordPrediction(metric, "rejected")
		return nil, err
	}

	key := coalesceKey(req)
	res, err := o.flights.Do(ctx, key, func() (*models.PredictionResult, error) {
		return o.run(ctx, req)
	})
	if err != nil {
		o.metrics.RecordPrediction(string(req.MetricType), "failed")
		return nil, err
	}
	o.metrics.RecordPrediction(string(req.MetricType), "success")
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, req *models.PredictionRequest) (*models.PredictionResult, error) {
	started := time.Now()
	cur := stageValidated

	fail := func(err error) (*models.PredictionResult, error) {
		o.log.Error("prediction failed",
			logger.String("metric", string(req.MetricType)),
			logger.String("tenant", req.TenantID),
			logger.String("stage", string(cur)),
			logger.Error(err))
		cur = stageFailed
		return nil, err
	}

	series, err := o.series.FetchSeries(ctx, req.TenantID, req.ClientID, req.MetricType, alignRange(req.Range, req.Frequency))
	if err != nil {
		return fail(err)
	}
	series = normalizeSeries(series)
	if len(series) == 0 {
		return fail(fmt.Errorf("%w: tenant %s metric %s", models.ErrDataUnavailable, req.TenantID, req.MetricType))
	}
	cur = stageDataFetched

	feats, err := features.Extract(series)
	if err != nil {
		return fail(err)
	}
	cur = stageFeaturesPrepared

	var decomp *seasonal.Decomposition
	if req.IncludeSeasonality {
		decomp = o.seasonality(ctx, req, series)
		if decomp != nil {
			cur = stageSeasonalityDone
		}
	}

	members, causes := o.runModels(ctx, series, req)
	cur = stageModelsRun

	combined, err := o.combiner.Combine(members)
	if err != nil {
		if len(causes) > 0 {
			return fail(&models.PredictionFailedError{Causes: causes})
		}
		return fail(err)
	}
	cur = stageEnsembled

	if decomp != nil {
		applySeasonality(combined, decomp, req.Frequency)
	}
	clampBounds(combined)

	result := &models.PredictionResult{
		ID:              uuid.NewString(),
		Type:            req.MetricType,
		Predictions:     combined,
		ConfidenceLevel: req.ConfidenceLevel,
		Metadata: models.PredictionMetadata{
			ModelVersion: o.cfg.ModelVersion,
			TrainedAt:    time.Now().UTC(),
			DataRange: models.DateRange{
				From: series[0].Date,
				To:   series[len(series)-1].Date,
			},
			FeaturesUsed: featureNames(feats),
		},
	}
	if decomp != nil {
		result.SeasonalFactors = decomp.Factors
	}

	if len(req.Scenarios) > 0 {
		last := series[len(series)-1]
		scenarios, err := o.simulator.RunAll(ctx, req.Scenarios, last.Value, last.Date, req.Frequency)
		if err != nil {
			return fail(err)
		}
		result.Scenarios = scenarios
		cur = stageScenariosRun
	}

	if req.IncludeBenchmarks {
		// benchmark failures degrade the result instead of failing it
		cmp, err := o.benchmark(ctx, req, combined)
		if err != nil {
			o.log.Warn("benchmark comparison skipped",
				logger.String("metric", string(req.MetricType)),
				logger.Error(err))
		} else {
			result.BenchmarkComparison = cmp
			cur = stageBenchmarkCompared
		}
	}

	cur = stageAssembled
	o.log.Info("prediction assembled",
		logger.String("id", result.ID),
		logger.String("metric", string(req.MetricType)),
		logger.String("tenant", req.TenantID),
		logger.Int("horizon", req.Horizon),
		logger.Int("models", len(members)),
		logger.Duration("took", time.Since(started)))

	if o.publisher != nil {
		if err := o.publisher.PublishResult(ctx, result); err != nil {
			o.log.Warn("result publish failed", logger.Error(err))
		}
	}
	return result, nil
}

func (o *Orchestrator) validate(req *models.PredictionRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", models.ErrInvalidRequest)
	}
	if !models.KnownMetricType(req.MetricType) {
		return fmt.Errorf("%w: unknown metric type %q", models.ErrInvalidRequest, req.MetricType)
	}
	if req.TenantID == "" {
		return fmt.Errorf("%w: tenantId is required", models.ErrInvalidRequest)
	}
	if req.Horizon < 1 || req.Horizon > o.cfg.MaxHorizon {
		return fmt.Errorf("%w: horizon %d outside [1, %d]", models.ErrInvalidRequest, req.Horizon, o.cfg.MaxHorizon)
	}
	if req.Frequency == "" {
		req.Frequency = models.FreqMonthly
	}
	switch req.Frequency {
	case models.FreqDaily, models.FreqWeekly, models.FreqMonthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", models.ErrInvalidRequest, req.Frequency)
	}
	if !forecaster.SupportedConfidence(req.ConfidenceLevel) {
		return fmt.Errorf("%w: %v", models.ErrInvalidConfidenceLevel, req.ConfidenceLevel)
	}
	for _, sc := range req.Scenarios {
		if sc.Steps <= 0 {
			return fmt.Errorf("%w: scenario %q has non-positive steps", models.ErrInvalidRequest, sc.Name)
		}
		if sc.Volatility < 0 {
			return fmt.Errorf("%w: scenario %q has negative volatility", models.ErrInvalidRequest, sc.Name)
		}
	}
	return nil
}

// cachedSeasonality is the persisted form of a decomposition. The key
// already fingerprints the series content; the embedded key guards
// against entries rewritten under a colliding or stale slot.
type cachedSeasonality struct {
	Key     string                  `json:"key"`
	Mode    seasonal.Mode           `json:"mode"`
	Factors []models.SeasonalFactor `json:"factors"`
}

// seasonality returns the decomposition for the series, from cache when
// a valid entry exists. All failures degrade to factors being absent.
func (o *Orchestrator) seasonality(ctx context.Context, req *models.PredictionRequest, series []models.SeriesPoint) *seasonal.Decomposition {
	key := seasonal.Fingerprint(req.TenantID, req.ClientID, req.Frequency, series)

	var entry cachedSeasonality
	err := o.cache.Get(ctx, key, &entry)
	switch {
	case err == nil && entry.Key == key:
		o.metrics.RecordCacheEvent("hit")
		return &seasonal.Decomposition{Factors: entry.Factors, Mode: entry.Mode}
	case err == nil:
		// decodable but inconsistent entry: treat as corruption, drop it
		o.metrics.RecordCacheEvent("corrupt")
		o.log.Warn("seasonal cache entry corrupt",
			logger.String("key", key),
			logger.Error(models.ErrCacheCorruption))
		_ = o.cache.Delete(ctx, key)
	case errors.Is(err, cache.ErrCacheMiss):
		o.metrics.RecordCacheEvent("miss")
	default:
		o.metrics.RecordCacheEvent("error")
		o.log.Warn("seasonal cache read failed", logger.Error(err))
	}

	decomp, err := o.decomposer.Decompose(series, req.Frequency)
	if err != nil {
		// not enough cycles: forecast without seasonal adjustment
		o.log.Debug("seasonal decomposition unavailable", logger.Error(err))
		return nil
	}

	lockKey := key + ":lock"
	if ok, lockErr := o.cache.TryLock(ctx, lockKey, o.cfg.LockTTL); lockErr == nil && ok {
		defer func() { _ = o.cache.Unlock(ctx, lockKey) }()
		entry := cachedSeasonality{Key: key, Mode: decomp.Mode, Factors: decomp.Factors}
		if err := o.cache.Set(ctx, key, entry, o.cfg.SeasonalTTL); err != nil {
			o.log.Warn("seasonal cache write failed", logger.Error(err))
		}
	}
	return decomp
}

// runModels trains every strategy in parallel and collects the
// successful forecasts plus the failure causes of the rest.
func (o *Orchestrator) runModels(ctx context.Context, series []models.SeriesPoint, req *models.PredictionRequest) ([]ensemble.MemberForecast, []error) {
	var (
		mu      sync.Mutex
		members []ensemble.MemberForecast
		causes  []error
		wg      sync.WaitGroup
	)

	for _, f := range o.forecasters {
		wg.Add(1)
		go func(f domsvc.Forecaster) {
			defer wg.Done()
			name := string(f.Kind())

			if len(series) < f.MinHistory() {
				mu.Lock()
				causes = append(causes, fmt.Errorf("%s: %w: have %d points, need %d", name, models.ErrInsufficientHistory, len(series), f.MinHistory()))
				mu.Unlock()
				return
			}

			started := time.Now()
			model, err := f.Train(ctx, series, req.Frequency)
			o.metrics.RecordModelDuration(name, time.Since(started).Seconds())
			if err != nil {
				o.metrics.RecordModelFailure(name)
				mu.Lock()
				causes = append(causes, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				return
			}
			defer model.Dispose()

			points, err := model.Predict(ctx, req.Horizon, req.ConfidenceLevel)
			if err != nil {
				o.metrics.RecordModelFailure(name)
				mu.Lock()
				causes = append(causes, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				return
			}

			mu.Lock()
			members = append(members, ensemble.MemberForecast{Kind: f.Kind(), Points: points, MSE: model.BacktestMSE()})
			mu.Unlock()
		}(f)
	}
	wg.Wait()
	return members, causes
}

func (o *Orchestrator) benchmark(ctx context.Context, req *models.PredictionRequest, combined []models.PredictionPoint) (*models.BenchmarkComparison, error) {
	reference, err := o.benchmarks.FetchBenchmark(ctx, req.MetricType, o.cfg.Industry)
	if err != nil {
		return nil, err
	}
	return o.comparator.Compare(combined, reference)
}

// applySeasonality adjusts forecast points by the calendar factor of
// their date.
func applySeasonality(points []models.PredictionPoint, decomp *seasonal.Decomposition, freq models.Frequency) {
	for i := range points {
		f := decomp.FactorAt(points[i].Date, freq)
		if decomp.Mode == seasonal.Additive {
			points[i].Value += f
			points[i].LowerBound += f
			points[i].UpperBound += f
			continue
		}
		points[i].Value *= f
		points[i].LowerBound *= f
		points[i].UpperBound *= f
	}
}

// clampBounds restores LowerBound <= Value <= UpperBound after
// adjustments that may flip an interval around zero.
func clampBounds(points []models.PredictionPoint) {
	for i := range points {
		if points[i].LowerBound > points[i].UpperBound {
			points[i].LowerBound, points[i].UpperBound = points[i].UpperBound, points[i].LowerBound
		}
		if points[i].Value < points[i].LowerBound {
			points[i].LowerBound = points[i].Value
		}
		if points[i].Value > points[i].UpperBound {
			points[i].UpperBound = points[i].Value
		}
	}
}

// normalizeSeries sorts ascending by date and keeps the last value seen
// for a duplicate date.
func normalizeSeries(series []models.SeriesPoint) []models.SeriesPoint {
	if len(series) == 0 {
		return series
	}
	sorted := append([]models.SeriesPoint(nil), series...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := sorted[:0]
	for _, p := range sorted {
		if len(out) > 0 && out[len(out)-1].Date.Equal(p.Date) {
			out[len(out)-1] = p
			continue
		}
		out = append(out, p)
	}
	return out
}

// alignRange snaps an explicit fetch window to period boundaries.
func alignRange(rng *models.DateRange, freq models.Frequency) *models.DateRange {
	if rng == nil {
		return nil
	}
	out := *rng
	if !out.From.IsZero() && !out.To.IsZero() {
		out.From, out.To = util.AlignRange(out.From, out.To, string(freq))
	}
	return &out
}

func featureNames(feats models.FeatureSet) []string {
	names := []string{"volatility", "trend"}
	if feats.Cyclical {
		names = append(names, "cycle")
	}
	return names
}

func coalesceKey(req *models.PredictionRequest) string {
	rng := ""
	if req.Range != nil {
		rng = req.Range.From.Format("2006-01-02") + ".." + req.Range.To.Format("2006-01-02")
	}
	return cache.GenerateKeyWithParams("predict",
		req.TenantID,
		req.ClientID,
		req.MetricType,
		req.Frequency,
		req.Horizon,
		req.ConfidenceLevel,
		req.IncludeSeasonality,
		req.IncludeBenchmarks,
		scenarioDigest(req.Scenarios),
		rng,
	)
}

// scenarioDigest folds the requested scenario definitions into the
// coalesce key so only fully identical requests share one in-flight run.
func scenarioDigest(defs []models.ScenarioDefinition) string {
	if len(defs) == 0 {
		return "none"
	}
	var b strings.Builder
	for _, d := range defs {
		fmt.Fprintf(&b, "%s|%g|%g|%d;", d.Name, d.Drift, d.Volatility, d.Steps)
	}
	return cache.HashKey(b.String())
}
