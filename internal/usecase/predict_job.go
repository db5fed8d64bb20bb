package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"FinCast/internal/domain/models"
	"FinCast/pkg/cache"
	"FinCast/pkg/logger"
	"FinCast/pkg/queue"
)

// PredictMessageType routes async prediction messages to their job.
const PredictMessageType = "prediction.requested"

// JobStatus is the lifecycle of an async prediction job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// ErrJobNotFound is returned when a job id is unknown or expired.
var ErrJobNotFound = errors.New("prediction job not found")

// PredictionJob tracks one async prediction through the queue.
type PredictionJob struct {
	ID        string                    `json:"id"`
	Status    JobStatus                 `json:"status"`
	Request   models.PredictionRequest  `json:"request"`
	Result    *models.PredictionResult  `json:"result,omitempty"`
	Error     string                    `json:"error,omitempty"`
	CreatedAt time.Time                 `json:"createdAt"`
	UpdatedAt time.Time                 `json:"updatedAt"`
}

// jobPayload is what travels through the queue; the tracked job state
// lives in the cache under the job id.
type jobPayload struct {
	JobID   string                   `json:"jobId"`
	Request models.PredictionRequest `json:"request"`
}

// AsyncPredictor enqueues prediction requests and tracks their status.
type AsyncPredictor struct {
	orch   *Orchestrator
	queue  queue.QueueService
	cache  cache.Service
	log    *logger.Logger
	jobTTL time.Duration
}

func NewAsyncPredictor(orch *Orchestrator, q queue.QueueService, cacheSvc cache.Service, log *logger.Logger) *AsyncPredictor {
	return &AsyncPredictor{
		orch:   orch,
		queue:  q,
		cache:  cacheSvc,
		log:    log,
		jobTTL: 24 * time.Hour,
	}
}

// Submit validates the request, records a queued job, and enqueues it.
func (a *AsyncPredictor) Submit(ctx context.Context, req *models.PredictionRequest) (*PredictionJob, error) {
	if err := a.orch.validate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	job := &PredictionJob{
		ID:        uuid.NewString(),
		Status:    JobQueued,
		Request:   *req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("record job: %w", err)
	}

	payload := jobPayload{JobID: job.ID, Request: *req}
	if err := a.queue.PublishMessage(ctx, PredictMessageType, payload); err != nil {
		job.Status = JobFailed
		job.Error = "enqueue failed"
		job.UpdatedAt = time.Now().UTC()
		_ = a.saveJob(ctx, job)
		return nil, fmt.Errorf("enqueue prediction: %w", err)
	}
	return job, nil
}

// Lookup returns the tracked state of a job.
func (a *AsyncPredictor) Lookup(ctx context.Context, id string) (*PredictionJob, error) {
	var job PredictionJob
	err := a.cache.Get(ctx, jobKey(id), &job)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (a *AsyncPredictor) saveJob(ctx context.Context, job *PredictionJob) error {
	return a.cache.Set(ctx, jobKey(job.ID), job, a.jobTTL)
}

func jobKey(id string) string {
	return cache.GenerateKey("prediction:job", id)
}

// Name implements queue.Job.
func (a *AsyncPredictor) Name() string { return "prediction-runner" }

// Type implements queue.Job.
func (a *AsyncPredictor) Type() string { return PredictMessageType }

// Handle runs one queued prediction and stores its outcome on the job.
func (a *AsyncPredictor) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[jobPayload](payload)
	if err != nil {
		return fmt.Errorf("parse prediction payload: %w", err)
	}

	job, err := a.Lookup(ctx, p.JobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			// job record expired, run anyway so the queue drains
			job = &PredictionJob{ID: p.JobID, Request: p.Request, CreatedAt: time.Now().UTC()}
		} else {
			return err
		}
	}

	job.Status = JobRunning
	job.UpdatedAt = time.Now().UTC()
	if err := a.saveJob(ctx, job); err != nil {
		a.log.Warn("job status update failed", logger.String("job", job.ID), logger.Error(err))
	}

	res, err := a.orch.Predict(ctx, &p.Request)
	job.UpdatedAt = time.Now().UTC()
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		if saveErr := a.saveJob(ctx, job); saveErr != nil {
			a.log.Error("job failure not recorded", logger.String("job", job.ID), logger.Error(saveErr))
		}
		// structural request errors are terminal, do not retry
		if errors.Is(err, models.ErrInvalidRequest) || errors.Is(err, models.ErrInvalidConfidenceLevel) {
			return nil
		}
		return err
	}

	job.Status = JobCompleted
	job.Result = res
	if err := a.saveJob(ctx, job); err != nil {
		a.log.Error("job result not recorded", logger.String("job", job.ID), logger.Error(err))
		return err
	}
	return nil
}
