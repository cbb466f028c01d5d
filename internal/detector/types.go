package detector

import (
	"image"
	"math"
)

// Point represents a 2D point
type Point struct {
	X, Y float32
}

// BoundingBox represents a face bounding box in pixels
type BoundingBox struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
}

// Width returns box width
func (b BoundingBox) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b BoundingBox) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns box center point
func (b BoundingBox) Center() Point {
	return Point{
		X: (b.X1 + b.X2) / 2,
		Y: (b.Y1 + b.Y2) / 2,
	}
}

// Area returns box area
func (b BoundingBox) Area() float32 {
	return b.Width() * b.Height()
}

// Landmarks represents 5 facial landmark points. Left and right are in image
// space: LeftEye has the smaller x on an upright face.
type Landmarks struct {
	LeftEye    Point // index 0
	RightEye   Point // index 1
	Nose       Point // index 2
	LeftMouth  Point // index 3
	RightMouth Point // index 4
}

// Landmarks106 represents 106 facial landmark points from insightface
type Landmarks106 [106]Point

// GetFivePoint extracts 5-point landmarks from 106-point landmarks
func (l *Landmarks106) GetFivePoint() Landmarks {
	return Landmarks{
		LeftEye:    centroid(l.GetPoints(LeftEyeIndices())),
		RightEye:   centroid(l.GetPoints(RightEyeIndices())),
		Nose:       l[86],
		LeftMouth:  l[52],
		RightMouth: l[61],
	}
}

// BoundingBox computes tight bounding box around all 106 points
func (l *Landmarks106) BoundingBox() BoundingBox {
	minX, minY := l[0].X, l[0].Y
	maxX, maxY := l[0].X, l[0].Y
	for i := 1; i < len(l); i++ {
		minX = min(minX, l[i].X)
		maxX = max(maxX, l[i].X)
		minY = min(minY, l[i].Y)
		maxY = max(maxY, l[i].Y)
	}
	return BoundingBox{X1: minX, Y1: minY, X2: maxX, Y2: maxY}
}

// Face is a backend detection in pixel coordinates of the image the backend saw.
// Keypoint fields are optional; which ones are filled depends on the backend.
type Face struct {
	BoundingBox  BoundingBox
	LeftEye      *Point
	RightEye     *Point
	Mouth        []Point
	Landmarks106 *Landmarks106
	Score        float32
}

// setFivePoint fills the eye and mouth keypoints from a 5-point set
func (f *Face) setFivePoint(l Landmarks) {
	left, right := l.LeftEye, l.RightEye
	f.LeftEye = &left
	f.RightEye = &right
	f.Mouth = []Point{l.LeftMouth, l.RightMouth}
}

// scale multiplies every coordinate of the face by s
func (f *Face) scale(s float32) {
	f.BoundingBox = BoundingBox{
		X1: f.BoundingBox.X1 * s, Y1: f.BoundingBox.Y1 * s,
		X2: f.BoundingBox.X2 * s, Y2: f.BoundingBox.Y2 * s,
	}
	if f.LeftEye != nil {
		p := Point{f.LeftEye.X * s, f.LeftEye.Y * s}
		f.LeftEye = &p
	}
	if f.RightEye != nil {
		p := Point{f.RightEye.X * s, f.RightEye.Y * s}
		f.RightEye = &p
	}
	mouth := make([]Point, len(f.Mouth))
	for i, p := range f.Mouth {
		mouth[i] = Point{p.X * s, p.Y * s}
	}
	f.Mouth = mouth
	if f.Landmarks106 != nil {
		var lm Landmarks106
		for i, p := range f.Landmarks106 {
			lm[i] = Point{p.X * s, p.Y * s}
		}
		f.Landmarks106 = &lm
	}
}

// NormBox is a rectangle in normalized image coordinates. All fields lie in [0,1].
type NormBox struct {
	X, Y, Width, Height float32
}

// Normalize converts a pixel box into a NormBox for an image of size w x h,
// clamping it to the image.
func Normalize(b BoundingBox, w, h int) NormBox {
	fw, fh := float32(w), float32(h)
	x1 := clamp(b.X1/fw, 0, 1)
	y1 := clamp(b.Y1/fh, 0, 1)
	x2 := clamp(b.X2/fw, 0, 1)
	y2 := clamp(b.Y2/fh, 0, 1)
	return NormBox{X: x1, Y: y1, Width: max(0, x2-x1), Height: max(0, y2-y1)}
}

// Pixels converts the box to pixel coordinates for an image of size w x h
func (n NormBox) Pixels(w, h int) BoundingBox {
	fw, fh := float32(w), float32(h)
	return BoundingBox{
		X1: n.X * fw,
		Y1: n.Y * fh,
		X2: (n.X + n.Width) * fw,
		Y2: (n.Y + n.Height) * fh,
	}
}

// Rect converts the box to an integer pixel rectangle clipped to a w x h image
func (n NormBox) Rect(w, h int) image.Rectangle {
	b := n.Pixels(w, h)
	r := image.Rect(
		int(math.Round(float64(b.X1))),
		int(math.Round(float64(b.Y1))),
		int(math.Round(float64(b.X2))),
		int(math.Round(float64(b.Y2))),
	)
	return r.Intersect(image.Rect(0, 0, w, h))
}

// FaceRegion is a detected face in normalized coordinates
type FaceRegion struct {
	Box        NormBox
	Confidence float32
}

// LandmarkSet holds normalized landmark groups of one face. Coordinates are
// relative to the full image given to the detector, not to the face crop.
// Eyes are optional; Mouth and Contour may be empty.
type LandmarkSet struct {
	LeftEye  *Point
	RightEye *Point
	Mouth    []Point
	Contour  []Point
}

// HasEyes reports whether both eye centres were located
func (l *LandmarkSet) HasEyes() bool {
	return l != nil && l.LeftEye != nil && l.RightEye != nil
}

// Pixel converts a normalized point to pixel coordinates of a w x h image
func (p Point) Pixel(w, h int) image.Point {
	return image.Pt(
		int(math.Round(float64(p.X*float32(w)))),
		int(math.Round(float64(p.Y*float32(h)))),
	)
}

// PixelPoints converts normalized points to pixel coordinates of a w x h image
func PixelPoints(points []Point, w, h int) []image.Point {
	if len(points) == 0 {
		return nil
	}
	out := make([]image.Point, len(points))
	for i, p := range points {
		out[i] = p.Pixel(w, h)
	}
	return out
}

// landmarkSetFromFace normalizes the keypoints of a pixel-space face. The 106
// point model takes precedence over backend keypoints when present.
func landmarkSetFromFace(f Face, w, h int) *LandmarkSet {
	norm := func(p Point) Point {
		return Point{X: clamp(p.X/float32(w), 0, 1), Y: clamp(p.Y/float32(h), 0, 1)}
	}
	normAll := func(ps []Point) []Point {
		if len(ps) == 0 {
			return nil
		}
		out := make([]Point, len(ps))
		for i, p := range ps {
			out[i] = norm(p)
		}
		return out
	}

	set := &LandmarkSet{}
	if f.Landmarks106 != nil {
		five := f.Landmarks106.GetFivePoint()
		left, right := norm(five.LeftEye), norm(five.RightEye)
		set.LeftEye, set.RightEye = &left, &right
		set.Mouth = normAll(f.Landmarks106.GetPoints(MouthIndices()))
		set.Contour = normAll(f.Landmarks106.GetPoints(FaceOutlineIndices()))
		return set
	}

	if f.LeftEye != nil {
		p := norm(*f.LeftEye)
		set.LeftEye = &p
	}
	if f.RightEye != nil {
		p := norm(*f.RightEye)
		set.RightEye = &p
	}
	set.Mouth = normAll(f.Mouth)
	return set
}

func centroid(points []Point) Point {
	if len(points) == 0 {
		return Point{}
	}
	var c Point
	for _, p := range points {
		c.X += p.X
		c.Y += p.Y
	}
	n := float32(len(points))
	return Point{X: c.X / n, Y: c.Y / n}
}
