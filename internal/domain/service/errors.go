package service

import "errors"

// Caller-facing error categories. Use errors.Is to match; a single error may
// carry both a category and its cause.
var (
	ErrValidation         = errors.New("validation error")
	ErrBuildingNotFound   = errors.New("building not found")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrModelNotTrained    = errors.New("model not trained")
	ErrForecastNotFound   = errors.New("forecast not found")
	ErrTrainingInProgress = errors.New("training already in progress")
)
