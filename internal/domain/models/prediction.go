package models

import "time"

// MetricType identifies which financial series a prediction is built from.
type MetricType string

const (
	MetricCashFlow MetricType = "cash_flow"
	MetricRevenue  MetricType = "revenue"
	MetricExpenses MetricType = "expenses"
	MetricBudget   MetricType = "budget"
)

// KnownMetricType reports whether mt is one of the supported metric types.
func KnownMetricType(mt MetricType) bool {
	switch mt {
	case MetricCashFlow, MetricRevenue, MetricExpenses, MetricBudget:
		return true
	}
	return false
}

// Frequency is the spacing between consecutive points of a series.
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
)

// Next returns the date h steps after t at this frequency.
func (f Frequency) Next(t time.Time, h int) time.Time {
	switch f {
	case FreqWeekly:
		return t.AddDate(0, 0, 7*h)
	case FreqMonthly:
		return t.AddDate(0, h, 0)
	default:
		return t.AddDate(0, 0, h)
	}
}

// SeasonalPeriod returns the length of one full seasonal cycle in points.
func (f Frequency) SeasonalPeriod() int {
	switch f {
	case FreqWeekly:
		return 52
	case FreqMonthly:
		return 12
	default:
		return 7
	}
}

// FinancialDataPoint is one historical record as supplied by the accessor.
// Produced outside the engine and never mutated by it.
type FinancialDataPoint struct {
	Timestamp time.Time  `json:"timestamp"`
	Amount    float64    `json:"amount"`
	Category  string     `json:"category,omitempty"`
	TenantID  string     `json:"tenantId"`
	ClientID  string     `json:"clientId,omitempty"`
}

// SeriesPoint is the engine-internal numeric projection of a data point.
// Series are ordered ascending by date with no duplicate dates.
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// DateRange bounds a historical fetch. Zero values mean unbounded.
type DateRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// ScenarioDefinition parameterizes one Monte Carlo scenario.
type ScenarioDefinition struct {
	Name       string  `json:"name"`
	Drift      float64 `json:"drift"`
	Volatility float64 `json:"volatility"`
	Steps      int     `json:"steps"`
}

// PredictionRequest is the public request contract of the engine.
type PredictionRequest struct {
	MetricType         MetricType           `json:"metricType"`
	TenantID           string               `json:"tenantId"`
	ClientID           string               `json:"clientId,omitempty"`
	Horizon            int                  `json:"horizon"`
	Frequency          Frequency            `json:"frequency,omitempty"`
	ConfidenceLevel    float64              `json:"confidenceLevel"`
	IncludeSeasonality bool                 `json:"includeSeasonality"`
	Scenarios          []ScenarioDefinition `json:"scenarios,omitempty"`
	IncludeBenchmarks  bool                 `json:"includeBenchmarks"`
	Range              *DateRange           `json:"range,omitempty"`
}

// PredictionPoint is one forecast step with its confidence interval.
// Invariant: LowerBound <= Value <= UpperBound.
type PredictionPoint struct {
	Date       time.Time `json:"date"`
	Value      float64   `json:"value"`
	LowerBound float64   `json:"lowerBound"`
	UpperBound float64   `json:"upperBound"`
	Confidence float64   `json:"confidence"`
}

// SeasonalPeriodType distinguishes the calendar dimension of a factor.
type SeasonalPeriodType string

const (
	PeriodMonthly SeasonalPeriodType = "monthly"
	PeriodWeekly  SeasonalPeriodType = "weekly"
	PeriodHoliday SeasonalPeriodType = "holiday"
)

// SeasonalFactor is one calendar-position adjustment produced by the
// decomposer. Multiplicative factors for a complete cycle average to 1.
type SeasonalFactor struct {
	PeriodType SeasonalPeriodType `json:"periodType"`
	Index      int                `json:"index"`
	Multiplier float64            `json:"multiplier"`
}

// ScenarioStatistics summarizes the final-value distribution of one scenario.
type ScenarioStatistics struct {
	Mean        float64             `json:"mean"`
	Median      float64             `json:"median"`
	Std         float64             `json:"std"`
	Percentiles ScenarioPercentiles `json:"percentiles"`
}

// ScenarioPercentiles holds the reported distribution quantiles.
type ScenarioPercentiles struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// ScenarioResult is the outcome of simulating one scenario.
type ScenarioResult struct {
	ScenarioName string              `json:"scenarioName"`
	Statistics   ScenarioStatistics  `json:"statistics"`
	SamplePaths  [][]SeriesPoint     `json:"samplePaths,omitempty"`
}

// BenchmarkComparison relates a forecast to externally supplied
// reference data.
type BenchmarkComparison struct {
	RelativePerformance float64  `json:"relativePerformance"`
	PercentileRank      float64  `json:"percentileRank"`
	Notes               []string `json:"notes,omitempty"`
}

// PredictionMetadata describes how a result was produced.
type PredictionMetadata struct {
	ModelVersion string    `json:"modelVersion"`
	TrainedAt    time.Time `json:"trainedAt"`
	DataRange    DateRange `json:"dataRange"`
	FeaturesUsed []string  `json:"featuresUsed"`
}

// PredictionResult is the public result contract of the engine.
type PredictionResult struct {
	ID                  string               `json:"id"`
	Type                MetricType           `json:"type"`
	Predictions         []PredictionPoint    `json:"predictions"`
	ConfidenceLevel     float64              `json:"confidenceLevel"`
	Scenarios           []ScenarioResult     `json:"scenarios,omitempty"`
	SeasonalFactors     []SeasonalFactor     `json:"seasonalFactors,omitempty"`
	BenchmarkComparison *BenchmarkComparison `json:"benchmarkComparison,omitempty"`
	Metadata            PredictionMetadata   `json:"metadata"`
}

// FeatureSet holds the signals derived from a series before modeling.
type FeatureSet struct {
	Volatility     float64 `json:"volatility"`
	TrendSlope     float64 `json:"trendSlope"`
	TrendIntercept float64 `json:"trendIntercept"`
	Cyclical       bool    `json:"cyclical"`
	CycleLength    int     `json:"cycleLength,omitempty"`
}
