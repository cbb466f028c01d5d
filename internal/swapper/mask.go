package swapper

import (
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
)

var (
	maskOn  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	maskOff = color.RGBA{}
)

// FaceMask is a single-channel 8-bit mask the size of its target image:
// 255 inside the face polygon, 0 outside.
type FaceMask struct {
	Mat gocv.Mat
}

// Size returns the mask dimensions (X = width, Y = height)
func (m *FaceMask) Size() image.Point {
	return image.Pt(m.Mat.Cols(), m.Mat.Rows())
}

// At returns the mask value at pixel (x, y)
func (m *FaceMask) At(x, y int) uint8 {
	return m.Mat.GetUCharAt(y, x)
}

// Close releases the mask
func (m *FaceMask) Close() error {
	if m == nil {
		return nil
	}
	return m.Mat.Close()
}

// BuildMask fills the polygon traced by contour, in the order given and
// closed from the last point back to the first. Self-intersecting orderings
// are filled as the polygon fill rule dictates. An empty contour or canvas
// yields nil.
func BuildMask(contour []image.Point, size image.Point) *FaceMask {
	if len(contour) == 0 || size.X <= 0 || size.Y <= 0 {
		return nil
	}

	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), size.Y, size.X, gocv.MatTypeCV8U)
	pts := gocv.NewPointsVectorFromPoints([][]image.Point{contour})
	defer pts.Close()
	gocv.FillPoly(&mat, pts, maskOn)

	return &FaceMask{Mat: mat}
}

// BuildHullMask fills the convex hull of contour, which tolerates contours
// reported out of order.
func BuildHullMask(contour []image.Point, size image.Point) *FaceMask {
	if len(contour) == 0 {
		return nil
	}

	points := make([]detector.Point, len(contour))
	for i, p := range contour {
		points[i] = detector.Point{X: float32(p.X), Y: float32(p.Y)}
	}

	hull := detector.ConvexHull(points)
	outline := make([]image.Point, len(hull))
	for i, p := range hull {
		outline[i] = image.Pt(int(p.X), int(p.Y))
	}
	return BuildMask(outline, size)
}

// CarveRegions clears each region from the mask so those pixels keep the
// target image. Polygons are scaled by expand about their centroid; a region
// of two points is carved as an ellipse spanning them.
func CarveRegions(m *FaceMask, regions [][]image.Point, expand float64) {
	if m == nil {
		return
	}

	for _, region := range regions {
		switch {
		case len(region) >= 3:
			pts := gocv.NewPointsVectorFromPoints([][]image.Point{expandPolygon(region, expand)})
			gocv.FillPoly(&m.Mat, pts, maskOff)
			pts.Close()
		case len(region) == 2:
			a, b := region[0], region[1]
			center := image.Pt((a.X+b.X)/2, (a.Y+b.Y)/2)
			length := math.Hypot(float64(b.X-a.X), float64(b.Y-a.Y)) * expand
			axes := image.Pt(int(length/2), max(1, int(length/4)))
			angle := math.Atan2(float64(b.Y-a.Y), float64(b.X-a.X)) * 180 / math.Pi
			gocv.Ellipse(&m.Mat, center, axes, angle, 0, 360, maskOff, -1)
		}
	}
}

// Soften blurs the mask edges with a Gaussian kernel of the given size.
// A kernel below 3 returns a copy.
func Soften(m *FaceMask, kernel int) *FaceMask {
	if m == nil {
		return nil
	}
	if kernel < 3 {
		return &FaceMask{Mat: m.Mat.Clone()}
	}
	if kernel%2 == 0 {
		kernel++
	}

	out := gocv.NewMat()
	gocv.GaussianBlur(m.Mat, &out, image.Pt(kernel, kernel), 0, 0, gocv.BorderDefault)
	return &FaceMask{Mat: out}
}

// expandPolygon scales points away from their centroid by factor
func expandPolygon(points []image.Point, factor float64) []image.Point {
	var cx, cy float64
	for _, p := range points {
		cx += float64(p.X)
		cy += float64(p.Y)
	}
	cx /= float64(len(points))
	cy /= float64(len(points))

	out := make([]image.Point, len(points))
	for i, p := range points {
		out[i] = image.Pt(
			int(math.Round((float64(p.X)-cx)*factor+cx)),
			int(math.Round((float64(p.Y)-cy)*factor+cy)),
		)
	}
	return out
}
