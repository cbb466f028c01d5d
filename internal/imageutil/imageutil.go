// Package imageutil holds the raster helpers shared by the detector and the
// swap stages. Every function returns a newly allocated Mat owned by the
// caller; inputs are never modified.
package imageutil

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"
)

// ErrEmptyImage is returned when an input Mat has no pixel data.
var ErrEmptyImage = errors.New("image has no pixel data")

// Valid reports whether img has a decodable pixel plane
func Valid(img gocv.Mat) bool {
	return !img.Empty() && img.Rows() > 0 && img.Cols() > 0
}

// Size returns the image dimensions as a point (X = width, Y = height)
func Size(img gocv.Mat) image.Point {
	return image.Pt(img.Cols(), img.Rows())
}

// EnsureBGR returns a 3-channel 8-bit copy of img. Gray and BGRA inputs are
// converted; BGR inputs are cloned.
func EnsureBGR(img gocv.Mat) (gocv.Mat, error) {
	if !Valid(img) {
		return gocv.NewMat(), ErrEmptyImage
	}

	out := gocv.NewMat()
	switch img.Channels() {
	case 1:
		gocv.CvtColor(img, &out, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(img, &out, gocv.ColorBGRAToBGR)
	case 3:
		img.CopyTo(&out)
	default:
		out.Close()
		return gocv.NewMat(), fmt.Errorf("unsupported channel count: %d", img.Channels())
	}

	if out.Type() != gocv.MatTypeCV8UC3 {
		converted := gocv.NewMat()
		out.ConvertTo(&converted, gocv.MatTypeCV8UC3)
		out.Close()
		out = converted
	}
	return out, nil
}

// Resize scales img to exactly width x height using bilinear interpolation
func Resize(img gocv.Mat, width, height int) (gocv.Mat, error) {
	if !Valid(img) {
		return gocv.NewMat(), ErrEmptyImage
	}
	if width <= 0 || height <= 0 {
		return gocv.NewMat(), fmt.Errorf("invalid target size %dx%d", width, height)
	}

	out := gocv.NewMat()
	gocv.Resize(img, &out, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	return out, nil
}

// ScaleToFit downscales img so that its longest side is at most maxDim,
// preserving the aspect ratio. Images that already fit (or maxDim <= 0) are
// cloned and reported with scale 1.
func ScaleToFit(img gocv.Mat, maxDim int) (gocv.Mat, float64, error) {
	if !Valid(img) {
		return gocv.NewMat(), 0, ErrEmptyImage
	}

	w, h := img.Cols(), img.Rows()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img.Clone(), 1, nil
	}

	scale := math.Min(float64(maxDim)/float64(w), float64(maxDim)/float64(h))
	newW := max(1, int(math.Round(float64(w)*scale)))
	newH := max(1, int(math.Round(float64(h)*scale)))

	out := gocv.NewMat()
	gocv.Resize(img, &out, image.Pt(newW, newH), 0, 0, gocv.InterpolationArea)
	return out, scale, nil
}

// Rotate rotates img by radians about its centre (positive is clockwise on
// screen, since image y points down). The output canvas grows to hold the
// whole rotated image so no corner is clipped; uncovered pixels take the
// border colour. The returned transform maps input pixel coordinates to
// output pixel coordinates.
func Rotate(img gocv.Mat, radians float64, border color.RGBA) (gocv.Mat, Affine, error) {
	if !Valid(img) {
		return gocv.NewMat(), Identity(), ErrEmptyImage
	}
	if radians == 0 {
		return img.Clone(), Identity(), nil
	}

	w, h := float64(img.Cols()), float64(img.Rows())
	c, s := math.Cos(radians), math.Sin(radians)

	newW := max(1, int(math.Round(math.Abs(h*s)+math.Abs(w*c))))
	newH := max(1, int(math.Round(math.Abs(h*c)+math.Abs(w*s))))

	// Pixel centres run from 0 to size-1.
	cx, cy := (w-1)/2, (h-1)/2
	ncx, ncy := float64(newW-1)/2, float64(newH-1)/2

	transform := Affine{
		{c, -s, ncx - c*cx + s*cy},
		{s, c, ncy - s*cx - c*cy},
	}

	m := transform.Mat()
	defer m.Close()

	out := gocv.NewMat()
	gocv.WarpAffineWithParams(img, &out, m, image.Pt(newW, newH),
		gocv.InterpolationLinear, gocv.BorderConstant, border)

	return out, transform, nil
}

// Rotate90 rotates img by quarterTurns * 90 degrees clockwise without resampling
func Rotate90(img gocv.Mat, quarterTurns int) (gocv.Mat, error) {
	if !Valid(img) {
		return gocv.NewMat(), ErrEmptyImage
	}

	turns := ((quarterTurns % 4) + 4) % 4
	if turns == 0 {
		return img.Clone(), nil
	}

	flags := map[int]gocv.RotateFlag{
		1: gocv.Rotate90Clockwise,
		2: gocv.Rotate180Clockwise,
		3: gocv.Rotate90CounterClockwise,
	}

	out := gocv.NewMat()
	gocv.Rotate(img, &out, flags[turns])
	return out, nil
}

// Encode compresses img into the given container format. quality applies to
// JPEG only and is clamped to 1..100.
func Encode(img gocv.Mat, ext gocv.FileExt, quality int) ([]byte, error) {
	if !Valid(img) {
		return nil, ErrEmptyImage
	}

	var params []int
	if ext == gocv.JPEGFileExt {
		params = []int{gocv.IMWriteJpegQuality, clampQuality(quality)}
	}

	buf, err := gocv.IMEncodeWithParams(ext, img, params)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ext, err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that Close releases
	data := append([]byte(nil), buf.GetBytes()...)
	return data, nil
}

// Decode decodes an encoded image into a BGR Mat
func Decode(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), ErrEmptyImage
	}

	img, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("decode: %w", err)
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), ErrEmptyImage
	}
	return img, nil
}

// Recompress round-trips img through JPEG at the given quality
func Recompress(img gocv.Mat, quality int) (gocv.Mat, error) {
	data, err := Encode(img, gocv.JPEGFileExt, quality)
	if err != nil {
		return gocv.NewMat(), err
	}
	return Decode(data)
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
