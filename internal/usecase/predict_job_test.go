package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinCast/internal/domain/models"
)

type fakeQueue struct {
	messages []interface{}
	err      error
}

func (f *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, payload)
	return nil
}

func newAsyncFixture(t *testing.T) (*AsyncPredictor, *orchFixture, *fakeQueue) {
	t.Helper()
	fix := newFixture(t, trendOnly(), monthlyHistory(48))
	q := &fakeQueue{}
	async := NewAsyncPredictor(fix.orch, q, fix.cache, testLogger(t))
	return async, fix, q
}

func TestSubmitQueuesJob(t *testing.T) {
	async, _, q := newAsyncFixture(t)

	job, err := async.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobQueued, job.Status)
	require.Len(t, q.messages, 1)

	// the tracked state is readable through Lookup
	stored, err := async.Lookup(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobQueued, stored.Status)
	assert.Equal(t, job.ID, stored.ID)
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	async, _, q := newAsyncFixture(t)

	req := validRequest()
	req.Horizon = 0
	_, err := async.Submit(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidRequest))
	assert.Empty(t, q.messages)
}

func TestSubmitEnqueueFailureMarksJobFailed(t *testing.T) {
	async, _, q := newAsyncFixture(t)
	q.err = errors.New("redis gone")

	_, err := async.Submit(context.Background(), validRequest())
	require.Error(t, err)
}

func TestLookupUnknownJob(t *testing.T) {
	async, _, _ := newAsyncFixture(t)

	_, err := async.Lookup(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestHandleCompletesJob(t *testing.T) {
	async, _, _ := newAsyncFixture(t)

	job, err := async.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	payload := jobPayload{JobID: job.ID, Request: *validRequest()}
	require.NoError(t, async.Handle(context.Background(), payload))

	done, err := async.Lookup(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Len(t, done.Result.Predictions, 6)
}

func TestHandleDecodesQueuedForm(t *testing.T) {
	async, _, _ := newAsyncFixture(t)

	job, err := async.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	// messages come off the wire as generic maps
	payload := map[string]interface{}{
		"jobId": job.ID,
		"request": map[string]interface{}{
			"metricType":      "cash_flow",
			"tenantId":        "tenant-1",
			"clientId":        "client-1",
			"horizon":         6,
			"frequency":       "monthly",
			"confidenceLevel": 0.95,
		},
	}
	require.NoError(t, async.Handle(context.Background(), payload))

	done, err := async.Lookup(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, done.Status)
}

func TestHandleStructuralErrorIsTerminal(t *testing.T) {
	async, _, _ := newAsyncFixture(t)

	bad := validRequest()
	bad.ConfidenceLevel = 0.93
	payload := jobPayload{JobID: "job-1", Request: *bad}

	// returns nil so the queue does not retry a request that can
	// never succeed
	require.NoError(t, async.Handle(context.Background(), payload))

	job, err := async.Lookup(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, job.Status)
	assert.NotEmpty(t, job.Error)
}

func TestHandleTransientErrorRetries(t *testing.T) {
	async, fix, _ := newAsyncFixture(t)
	fix.series.err = models.ErrDataUnavailable

	payload := jobPayload{JobID: "job-2", Request: *validRequest()}
	err := async.Handle(context.Background(), payload)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDataUnavailable))

	job, lookupErr := async.Lookup(context.Background(), "job-2")
	require.NoError(t, lookupErr)
	assert.Equal(t, JobFailed, job.Status)
}
