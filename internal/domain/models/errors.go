package models

import (
	"errors"
	"fmt"
	"strings"
)

// Engine error taxonomy. Structural errors abort a request immediately;
// per-model errors degrade the ensemble and are only fatal when every
// model fails.
var (
	ErrInvalidRequest         = errors.New("invalid prediction request")
	ErrInvalidConfidenceLevel = errors.New("confidence level not supported")
	ErrDataUnavailable        = errors.New("no historical data for scope")
	ErrInsufficientHistory    = errors.New("insufficient history for model")
	ErrModelTraining          = errors.New("model training failed")
	ErrCacheCorruption        = errors.New("seasonal cache entry corrupt")
)

// PredictionFailedError aggregates the per-model causes when no
// forecaster produced a usable forecast.
type PredictionFailedError struct {
	Causes []error
}

func (e *PredictionFailedError) Error() string {
	msgs := make([]string, 0, len(e.Causes))
	for _, c := range e.Causes {
		msgs = append(msgs, c.Error())
	}
	return fmt.Sprintf("prediction failed, all models errored: %s", strings.Join(msgs, "; "))
}

// Unwrap exposes the causes to errors.Is / errors.As.
func (e *PredictionFailedError) Unwrap() []error {
	return e.Causes
}
