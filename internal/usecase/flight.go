package usecase

import (
	"context"
	"sync"

	"FinCast/internal/domain/models"
)

// flightCall is one in-progress computation shared by its waiters.
type flightCall struct {
	done chan struct{}
	res  *models.PredictionResult
	err  error
}

// flightGroup coalesces concurrent identical requests so equal work is
// executed at most once while the first call is still in flight. The
// result is handed to every waiter and not retained afterwards.
type flightGroup struct {
	mu    sync.Mutex
	calls map[string]*flightCall
}

func newFlightGroup() *flightGroup {
	return &flightGroup{calls: make(map[string]*flightCall)}
}

func (g *flightGroup) Do(ctx context.Context, key string, fn func() (*models.PredictionResult, error)) (*models.PredictionResult, error) {
	g.mu.Lock()
	if c, ok := g.calls[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.res, c.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c := &flightCall{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()

	c.res, c.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(c.done)

	return c.res, c.err
}
