// Package detector locates faces and facial landmarks. A Detector wraps one
// vision Backend (SCRFD over ONNX Runtime, or pigo) and an optional 106-point
// contour model, and reports results in normalized image coordinates.
package detector

import (
	"errors"
	"fmt"
	"log"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/imageutil"
)

var (
	// ErrInvalidImage is returned for images with no decodable pixel data
	ErrInvalidImage = errors.New("invalid image")
	// ErrBackendFailure wraps errors raised by the vision backend
	ErrBackendFailure = errors.New("face detection backend failure")
	// ErrNoFaces reports that an image contained no face
	ErrNoFaces = errors.New("no faces detected")
)

// Backend finds faces in a BGR image, in pixel coordinates of that image.
// Results must be ordered by descending score.
type Backend interface {
	Detect(img gocv.Mat) ([]Face, error)
	Close() error
}

// LandmarkModel locates 106 landmarks of the face inside box
type LandmarkModel interface {
	Detect(img gocv.Mat, box BoundingBox) (*Landmarks106, error)
	Close() error
}

// Options tunes a Detector
type Options struct {
	// MaxDimension downscales larger images before they reach the backend; 0 disables
	MaxDimension int
}

// Detector answers face and landmark queries. It holds no per-image state:
// every call runs the backend afresh.
type Detector struct {
	backend   Backend
	landmarks LandmarkModel
	opts      Options
}

// New creates a Detector. landmarks may be nil.
func New(backend Backend, landmarks LandmarkModel, opts Options) *Detector {
	return &Detector{backend: backend, landmarks: landmarks, opts: opts}
}

// DetectFaces returns every face in img, highest confidence first. An image
// without faces yields an empty slice and a nil error.
func (d *Detector) DetectFaces(img gocv.Mat) ([]FaceRegion, error) {
	faces, err := d.detect(img)
	if err != nil {
		return nil, err
	}

	w, h := img.Cols(), img.Rows()
	regions := make([]FaceRegion, 0, len(faces))
	for _, f := range faces {
		regions = append(regions, FaceRegion{
			Box:        Normalize(f.BoundingBox, w, h),
			Confidence: clamp(f.Score, 0, 1),
		})
	}
	return regions, nil
}

// DetectLandmarks returns the landmarks of the face in region. It returns
// nil and no error when no landmarks can be located for the region.
func (d *Detector) DetectLandmarks(img gocv.Mat, region FaceRegion) (*LandmarkSet, error) {
	if !imageutil.Valid(img) {
		return nil, ErrInvalidImage
	}
	w, h := img.Cols(), img.Rows()
	box := region.Box.Pixels(w, h)
	if box.Width() <= 0 || box.Height() <= 0 {
		return nil, nil
	}

	if d.landmarks != nil {
		bgr, err := imageutil.EnsureBGR(img)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		defer bgr.Close()

		lm, err := d.landmarks.Detect(bgr, box)
		if err != nil {
			log.Printf("[detector] landmark model failed: %v", err)
			return nil, fmt.Errorf("%w: %w", ErrBackendFailure, err)
		}
		return landmarkSetFromFace(Face{BoundingBox: box, Landmarks106: lm}, w, h), nil
	}

	faces, err := d.detect(img)
	if err != nil {
		return nil, err
	}

	best, bestIoU := -1, float32(0)
	for i, f := range faces {
		if v := iou(f.BoundingBox, box); v > bestIoU {
			best, bestIoU = i, v
		}
	}
	if best < 0 {
		return nil, nil
	}
	return landmarkSetFromFace(faces[best], w, h), nil
}

// detect runs the backend on a BGR copy of img, downscaled per Options, and
// returns faces in pixel coordinates of img.
func (d *Detector) detect(img gocv.Mat) ([]Face, error) {
	if !imageutil.Valid(img) {
		return nil, ErrInvalidImage
	}

	bgr, err := imageutil.EnsureBGR(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	defer bgr.Close()

	small, scale, err := imageutil.ScaleToFit(bgr, d.opts.MaxDimension)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	defer small.Close()

	faces, err := d.backend.Detect(small)
	if err != nil {
		log.Printf("[detector] backend failed on %dx%d image: %v", img.Cols(), img.Rows(), err)
		return nil, fmt.Errorf("%w: %w", ErrBackendFailure, err)
	}

	if scale != 1 {
		for i := range faces {
			faces[i].scale(float32(1 / scale))
		}
	}
	sortByScore(faces)
	return faces, nil
}

// Close releases the backend and the landmark model
func (d *Detector) Close() error {
	var errs []error
	if d.backend != nil {
		if err := d.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("backend: %w", err))
		}
	}
	if d.landmarks != nil {
		if err := d.landmarks.Close(); err != nil {
			errs = append(errs, fmt.Errorf("landmarks: %w", err))
		}
	}
	return errors.Join(errs...)
}
