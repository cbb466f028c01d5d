// Package swapper holds the overlay stages of the pipeline: eye-line
// alignment, face mask construction and mask-weighted compositing.
package swapper

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/imageutil"
)

// ErrInvalidImage is returned when an input image has no pixel data
var ErrInvalidImage = errors.New("invalid image")

// BlendConfig controls how the source face is laid over the target
type BlendConfig struct {
	Intensity     float64 // opacity of the source face, 0..1
	PreserveMouth bool    // keep the target mouth unblended
	PreserveEyes  bool    // keep the target eyes unblended
	ConvexMask    bool    // fill the convex hull of the contour instead of the raw polygon
	Feather       int     // Gaussian kernel applied to mask edges; 0 keeps them hard
}

// DefaultBlendConfig returns a full-intensity, hard-edged blend
func DefaultBlendConfig() BlendConfig {
	return BlendConfig{Intensity: 1}
}

// Clamp returns a copy with Intensity pinned to [0,1] and Feather to >= 0
func (c BlendConfig) Clamp() BlendConfig {
	if math.IsNaN(c.Intensity) {
		c.Intensity = 0
	}
	c.Intensity = math.Max(0, math.Min(1, c.Intensity))
	c.Feather = max(0, c.Feather)
	return c
}

// ScaleFactor returns the uniform scale that fits a srcW x srcH crop inside a
// boxW x boxH box without distorting it.
func ScaleFactor(boxW, boxH, srcW, srcH int) float64 {
	if srcW <= 0 || srcH <= 0 {
		return 0
	}
	return math.Min(float64(boxW)/float64(srcW), float64(boxH)/float64(srcH))
}

// Composite lays sourceCrop over target at targetBox and returns a new image
// the size of target. The crop is scaled uniformly by ScaleFactor, placed at
// the box origin and clipped to the canvas. Each pixel blends as
//
//	out = target*(1 - m*intensity) + source*(m*intensity)
//
// with m = mask/255, or m = 1 over the whole placed crop when mask is nil.
// Invalid inputs yield an unmodified copy of target together with
// ErrInvalidImage. A mask whose size differs from target panics.
func Composite(target, sourceCrop gocv.Mat, targetBox image.Rectangle, mask *FaceMask, intensity float64) (gocv.Mat, error) {
	if !imageutil.Valid(target) {
		return target.Clone(), fmt.Errorf("%w: empty target", ErrInvalidImage)
	}
	if mask != nil && mask.Size() != imageutil.Size(target) {
		panic(fmt.Sprintf("swapper: mask size %v does not match target size %v", mask.Size(), imageutil.Size(target)))
	}
	if !imageutil.Valid(sourceCrop) {
		return target.Clone(), fmt.Errorf("%w: empty source crop", ErrInvalidImage)
	}
	if targetBox.Empty() {
		return target.Clone(), fmt.Errorf("%w: empty target box %v", ErrInvalidImage, targetBox)
	}
	if target.Type() != gocv.MatTypeCV8UC3 || sourceCrop.Type() != gocv.MatTypeCV8UC3 {
		return target.Clone(), fmt.Errorf("%w: expected 8-bit BGR images", ErrInvalidImage)
	}

	intensity = BlendConfig{Intensity: intensity}.Clamp().Intensity
	out := target.Clone()

	scale := ScaleFactor(targetBox.Dx(), targetBox.Dy(), sourceCrop.Cols(), sourceCrop.Rows())
	w := max(1, int(math.Round(float64(sourceCrop.Cols())*scale)))
	h := max(1, int(math.Round(float64(sourceCrop.Rows())*scale)))

	placed := image.Rect(targetBox.Min.X, targetBox.Min.Y, targetBox.Min.X+w, targetBox.Min.Y+h)
	dst := placed.Intersect(image.Rect(0, 0, target.Cols(), target.Rows()))
	if dst.Empty() || intensity == 0 {
		return out, nil
	}

	scaled, err := imageutil.Resize(sourceCrop, w, h)
	if err != nil {
		return out, err
	}
	defer scaled.Close()

	src := scaled.Region(dst.Sub(placed.Min))
	defer src.Close()
	tgt := out.Region(dst)
	defer tgt.Close()

	alpha := alphaFor(mask, dst, intensity)
	defer alpha.Close()

	blended := blend(tgt, src, alpha)
	defer blended.Close()
	blended.CopyTo(&tgt)

	return out, nil
}

// alphaFor builds the single-channel float weight for the dst rectangle
func alphaFor(mask *FaceMask, dst image.Rectangle, intensity float64) gocv.Mat {
	if mask == nil {
		return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(intensity, 0, 0, 0), dst.Dy(), dst.Dx(), gocv.MatTypeCV32F)
	}

	roi := mask.Mat.Region(dst)
	defer roi.Close()

	alpha := gocv.NewMat()
	roi.ConvertToWithParams(&alpha, gocv.MatTypeCV32F, float32(intensity/255), 0)
	return alpha
}

// blend computes t + (s - t) * alpha per channel and returns an 8-bit image
func blend(t, s, alpha gocv.Mat) gocv.Mat {
	tf := gocv.NewMat()
	defer tf.Close()
	t.ConvertTo(&tf, gocv.MatTypeCV32FC3)

	sf := gocv.NewMat()
	defer sf.Close()
	s.ConvertTo(&sf, gocv.MatTypeCV32FC3)

	alpha3 := gocv.NewMat()
	defer alpha3.Close()
	gocv.Merge([]gocv.Mat{alpha, alpha, alpha}, &alpha3)

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.Subtract(sf, tf, &diff)

	weighted := gocv.NewMat()
	defer weighted.Close()
	gocv.Multiply(diff, alpha3, &weighted)

	sum := gocv.NewMat()
	defer sum.Close()
	gocv.Add(tf, weighted, &sum)

	out := gocv.NewMat()
	sum.ConvertTo(&out, gocv.MatTypeCV8UC3)
	return out
}
