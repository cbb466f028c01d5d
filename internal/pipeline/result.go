package pipeline

import (
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

// Outcome classifies how an invocation ended
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeNoFaces
	OutcomeBackendFailure
	OutcomeInvalidImage
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoFaces:
		return "no-faces"
	case OutcomeBackendFailure:
		return "backend-failure"
	case OutcomeInvalidImage:
		return "invalid-image"
	case OutcomeCanceled:
		return "canceled"
	}
	return "unknown"
}

// Timing holds performance timing information
type Timing struct {
	Detection time.Duration
	Landmarks time.Duration
	Alignment time.Duration
	Mask      time.Duration
	Composite time.Duration
	Total     time.Duration
}

// Result is the outcome of one invocation. Image is always set and owned by
// the receiver: the composited frame on success, otherwise an unmodified copy
// of the target.
type Result struct {
	Seq     uint64
	ID      uuid.UUID
	Success bool
	Outcome Outcome
	Err     error
	Image   gocv.Mat
	State   State
	Timing  Timing
}

// Close releases the result image
func (r *Result) Close() error {
	return r.Image.Close()
}
