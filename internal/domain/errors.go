package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("resource not found")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file exceeds maximum allowed size")
	ErrUploadFailed        = errors.New("file upload to storage failed")
	ErrJobNotCompleted     = errors.New("job has not completed")

	// Pipeline failure taxonomy. Every pipeline abort wraps one of these
	// so callers can map the failure to an actionable message.
	ErrNoFloorPlanPages       = errors.New("no floor plan pages found")
	ErrScaleUnresolved        = errors.New("drawing scale could not be resolved")
	ErrInsufficientRoomData   = errors.New("insufficient room data extracted")
	ErrImplausibleBuilding    = errors.New("reconciled building size is implausible")
	ErrReconciliationFailed   = errors.New("extraction produced no usable candidates")
	ErrCalculationInput       = errors.New("load calculation input is invalid")
	ErrCapabilityUnavailable  = errors.New("external capability unavailable")
	ErrClimateLocationUnknown = errors.New("no design conditions for location")
)

// StageError wraps a failure with the pipeline stage it occurred in.
type StageError struct {
	Stage PipelineStage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage that produced it.
func NewStageError(stage PipelineStage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
