package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"FinCast/internal/domain/models"
	"FinCast/internal/service/metrics"
	"FinCast/internal/service/ratelimit"
	"FinCast/internal/usecase"
	xhttp "FinCast/pkg/http"
	xlogger "FinCast/pkg/logger"
)

// PredictionsHandler exposes the forecasting engine over HTTP.
type PredictionsHandler struct {
	logger  *xlogger.Logger
	orch    *usecase.Orchestrator
	async   *usecase.AsyncPredictor
	rl      *ratelimit.Limiter
	rlCap   float64
	rlRate  float64
	healthy func(echo.Context) error
}

func NewPredictionsHandler(logger *xlogger.Logger, orch *usecase.Orchestrator, async *usecase.AsyncPredictor) *PredictionsHandler {
	metrics.Register()
	return &PredictionsHandler{
		logger: logger,
		orch:   orch,
		async:  async,
		rl:     ratelimit.New(),
		rlCap:  10,
		rlRate: 5,
	}
}

// SetRateLimit overrides the default per-address token bucket.
func (h *PredictionsHandler) SetRateLimit(capacity, refillPerSec float64) {
	if capacity > 0 && refillPerSec > 0 {
		h.rlCap = capacity
		h.rlRate = refillPerSec
	}
}

// SetHealthCheck registers a dependency probe for the health endpoint.
func (h *PredictionsHandler) SetHealthCheck(fn func(echo.Context) error) { h.healthy = fn }

func (h *PredictionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/predictions", h.Predict)
	g.POST("/predictions/async", h.PredictAsync)
	g.GET("/predictions/jobs/:id", h.JobStatus)
	g.GET("/health", h.Health)
}

type scenarioRequest struct {
	Name       string  `json:"name" validate:"required"`
	Drift      float64 `json:"drift"`
	Volatility float64 `json:"volatility" validate:"gte=0"`
	Steps      int     `json:"steps" validate:"required,gte=1,lte=365"`
}

type predictRequest struct {
	MetricType         string            `json:"metricType" validate:"required,oneof=cash_flow revenue expenses budget"`
	TenantID           string            `json:"tenantId" validate:"required"`
	ClientID           string            `json:"clientId"`
	Horizon            int               `json:"horizon" validate:"required,gte=1,lte=120"`
	Frequency          string            `json:"frequency" default:"monthly" validate:"oneof=daily weekly monthly"`
	ConfidenceLevel    float64           `json:"confidenceLevel" default:"0.95"`
	IncludeSeasonality bool              `json:"includeSeasonality"`
	Scenarios          []scenarioRequest `json:"scenarios" validate:"omitempty,dive"`
	IncludeBenchmarks  bool              `json:"includeBenchmarks"`
	From               string            `json:"from"`
	To                 string            `json:"to"`
}

func (r *predictRequest) toModel() *models.PredictionRequest {
	req := &models.PredictionRequest{
		MetricType:         models.MetricType(r.MetricType),
		TenantID:           r.TenantID,
		ClientID:           r.ClientID,
		Horizon:            r.Horizon,
		Frequency:          models.Frequency(r.Frequency),
		ConfidenceLevel:    r.ConfidenceLevel,
		IncludeSeasonality: r.IncludeSeasonality,
		IncludeBenchmarks:  r.IncludeBenchmarks,
	}
	for _, sc := range r.Scenarios {
		req.Scenarios = append(req.Scenarios, models.ScenarioDefinition{
			Name:       sc.Name,
			Drift:      sc.Drift,
			Volatility: sc.Volatility,
			Steps:      sc.Steps,
		})
	}
	if r.From != "" || r.To != "" {
		rng := &models.DateRange{}
		rng.From = xhttp.ParseTimeDefault(r.From, time.Time{})
		rng.To = xhttp.ParseTimeDefault(r.To, time.Time{})
		req.Range = rng
	}
	return req
}

func (h *PredictionsHandler) Predict(c echo.Context) error {
	start := time.Now()
	endpoint := "predict"
	defer func() { metrics.PredictionLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, h.rlCap, h.rlRate) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	req := &predictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.orch.Predict(c.Request().Context(), req.toModel())
	if err != nil {
		metrics.PredictionErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("prediction error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *PredictionsHandler) PredictAsync(c echo.Context) error {
	start := time.Now()
	endpoint := "predict_async"
	defer func() { metrics.PredictionLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":"+endpoint, h.rlCap, h.rlRate) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	req := &predictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	job, err := h.async.Submit(c.Request().Context(), req.toModel())
	if err != nil {
		metrics.PredictionErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("async submit error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.CreatedResponse(c, job)
}

func (h *PredictionsHandler) JobStatus(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "job id required")
	}

	job, err := h.async.Lookup(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, usecase.ErrJobNotFound) {
			return xhttp.NotFoundResponse(c, "job not found")
		}
		h.logger.Error("job lookup error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, job)
}

func (h *PredictionsHandler) Health(c echo.Context) error {
	if h.healthy != nil {
		if err := h.healthy(c); err != nil {
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// mapDomainError translates engine error taxonomy to transport errors.
func mapDomainError(err error) error {
	var failed *models.PredictionFailedError
	switch {
	case errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, models.ErrInvalidConfidenceLevel):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, models.ErrDataUnavailable):
		return xhttp.NotFoundError(err.Error())
	case errors.Is(err, models.ErrInsufficientHistory):
		return xhttp.NewAppError("ERR_UNPROCESSABLE", "", err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &failed):
		return xhttp.NewAppError("ERR_PREDICTION_FAILED", "", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, models.ErrModelTraining):
		return xhttp.InternalError(err.Error())
	default:
		return xhttp.InternalError(err.Error())
	}
}
