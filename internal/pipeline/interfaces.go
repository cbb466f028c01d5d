package pipeline

import (
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/swapper"
)

// FaceDetector interface for face and landmark detection
type FaceDetector interface {
	DetectFaces(img gocv.Mat) ([]detector.FaceRegion, error)
	DetectLandmarks(img gocv.Mat, region detector.FaceRegion) (*detector.LandmarkSet, error)
	Close() error
}

// SettingsProvider supplies the blend settings, read once per invocation
type SettingsProvider interface {
	BlendConfig() swapper.BlendConfig
}

// ProgressFunc receives progress milestones as they are reached.
// Percentages are ordering hints, not cost proportions.
type ProgressFunc func(percent int, state State)
