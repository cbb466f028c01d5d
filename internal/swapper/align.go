package swapper

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/imageutil"
)

// AlignResult contains alignment results
type AlignResult struct {
	Image     gocv.Mat         // rotated image, canvas expanded to hold all of the input
	Transform imageutil.Affine // maps input pixel coordinates to Image coordinates
	Angle     float64          // eye-line angle in radians that was removed
}

// Close releases the aligned image
func (r *AlignResult) Close() error {
	return r.Image.Close()
}

// Align rotates img so that the line from the left eye to the right eye is
// horizontal. Without both eyes, or with coincident eyes, the result is an
// unrotated copy of img and the identity transform.
func Align(img gocv.Mat, landmarks *detector.LandmarkSet) (*AlignResult, error) {
	if !imageutil.Valid(img) {
		return nil, ErrInvalidImage
	}

	if !landmarks.HasEyes() {
		return &AlignResult{Image: img.Clone(), Transform: imageutil.Identity()}, nil
	}

	angle := EyeAngle(*landmarks.LeftEye, *landmarks.RightEye, img.Cols(), img.Rows())

	rotated, transform, err := imageutil.Rotate(img, -angle, color.RGBA{})
	if err != nil {
		return nil, err
	}

	return &AlignResult{Image: rotated, Transform: transform, Angle: angle}, nil
}

// EyeAngle returns the angle in radians of the vector from left to right eye,
// measured in pixel space of a w x h image (y down). Coincident eyes give 0.
func EyeAngle(left, right detector.Point, w, h int) float64 {
	dx := float64(right.X-left.X) * float64(w)
	dy := float64(right.Y-left.Y) * float64(h)
	return math.Atan2(dy, dx)
}

// MapRect moves r through the transform: the centre of r is mapped and the
// width and height are kept. The result is clipped to bounds.
func MapRect(r image.Rectangle, t imageutil.Affine, bounds image.Rectangle) image.Rectangle {
	cx := float64(r.Min.X+r.Max.X) / 2
	cy := float64(r.Min.Y+r.Max.Y) / 2
	nx, ny := t.Apply(cx, cy)

	x0 := int(math.Round(nx - float64(r.Dx())/2))
	y0 := int(math.Round(ny - float64(r.Dy())/2))
	return image.Rect(x0, y0, x0+r.Dx(), y0+r.Dy()).Intersect(bounds)
}
