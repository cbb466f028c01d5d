package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/imageutil"
	"github.com/dudu/faceswap/internal/inference"
)

// Landmark106 detects 106 facial landmarks using insightface's 2d106det model
type Landmark106 struct {
	session   *inference.Session
	inputSize int
	inputMean float64
	inputStd  float64
}

// NewLandmark106 creates a new 106-point landmark detector
func NewLandmark106(modelPath string, opts inference.SessionOptions) (*Landmark106, error) {
	session, err := inference.NewSession(modelPath, []string{"data"}, []string{"fc1"}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create landmark session: %w", err)
	}

	return &Landmark106{
		session:   session,
		inputSize: 192,
		inputMean: 127.5,
		inputStd:  128.0,
	}, nil
}

// Detect returns the 106 landmarks of the face inside box, in pixel
// coordinates of img.
func (l *Landmark106) Detect(img gocv.Mat, box BoundingBox) (*Landmarks106, error) {
	if box.Width() <= 0 || box.Height() <= 0 {
		return nil, fmt.Errorf("degenerate face box %+v", box)
	}

	// 1.5x expansion like insightface
	center := box.Center()
	scale := float64(l.inputSize) / (float64(max(box.Width(), box.Height())) * 1.5)
	half := float64(l.inputSize) / 2

	crop := imageutil.Affine{
		{scale, 0, half - float64(center.X)*scale},
		{0, scale, half - float64(center.Y)*scale},
	}
	m := crop.Mat()
	defer m.Close()

	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(img, &aligned, m, image.Pt(l.inputSize, l.inputSize))

	// (x - mean) / std in RGB, NCHW
	blob := gocv.BlobFromImage(aligned, 1.0/l.inputStd, image.Pt(l.inputSize, l.inputSize),
		gocv.NewScalar(l.inputMean, l.inputMean, l.inputMean, 0), true, false)
	defer blob.Close()

	inputTensor, err := inference.CreateTensor(
		[]int64{1, 3, int64(l.inputSize), int64(l.inputSize)},
		bytesToFloat32(blob.ToBytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	// (1, 212) = 106 landmarks * 2 coords
	outputTensor, err := inference.CreateEmptyTensor[float32]([]int64{1, 212})
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := l.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("landmark inference failed: %w", err)
	}

	inv, _ := crop.Invert()
	landmarks := l.postprocess(outputTensor.GetData(), inv)
	return &landmarks, nil
}

// postprocess maps model output in [-1, 1] back to image coordinates
func (l *Landmark106) postprocess(output []float32, inv imageutil.Affine) Landmarks106 {
	var landmarks Landmarks106
	half := float64(l.inputSize) / 2

	for i := range landmarks {
		x := (float64(output[i*2]) + 1) * half
		y := (float64(output[i*2+1]) + 1) * half
		ox, oy := inv.Apply(x, y)
		landmarks[i] = Point{X: float32(ox), Y: float32(oy)}
	}

	return landmarks
}

// Close releases detector resources
func (l *Landmark106) Close() error {
	return l.session.Destroy()
}

// FaceOutlineIndices returns the 33 jawline indices of the 106-point layout
// in walk order, from one temple down to the chin (0) and up to the other.
// The layout numbers the jaw in two interleaved runs per side, so index
// order is not contour order.
func FaceOutlineIndices() []int {
	idx := make([]int, 0, 33)
	idx = append(idx, 1)
	idx = appendRange(idx, 9, 16)
	idx = appendRange(idx, 2, 8)
	idx = append(idx, 0)
	idx = appendRange(idx, 24, 18)
	idx = appendRange(idx, 32, 25)
	return append(idx, 17)
}

// appendRange appends from..to inclusive, counting down when to < from
func appendRange(idx []int, from, to int) []int {
	step := 1
	if to < from {
		step = -1
	}
	for i := from; ; i += step {
		idx = append(idx, i)
		if i == to {
			return idx
		}
	}
}

// MouthIndices returns the outer lip ring of the 106-point layout
func MouthIndices() []int {
	return []int{52, 64, 63, 71, 67, 68, 61, 58, 59, 53, 56, 55}
}

// LeftEyeIndices returns the eye ring with the smaller x on an upright face
func LeftEyeIndices() []int {
	return []int{33, 34, 35, 36, 37, 38, 39, 40, 41, 42}
}

// RightEyeIndices returns the eye ring with the larger x on an upright face
func RightEyeIndices() []int {
	return []int{87, 88, 89, 90, 91, 92, 93, 94, 95, 96}
}

// GetPoints returns the points at the given indices; out-of-range indices are skipped
func (l *Landmarks106) GetPoints(indices []int) []Point {
	points := make([]Point, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(l) {
			points = append(points, l[idx])
		}
	}
	return points
}

// ConvexHull computes the convex hull of points with a gift-wrapping walk.
// Inputs with fewer than three points are returned as is.
func ConvexHull(points []Point) []Point {
	if len(points) < 3 {
		return points
	}

	// Leftmost point, lowest y on ties
	start := 0
	for i := 1; i < len(points); i++ {
		if points[i].X < points[start].X ||
			(points[i].X == points[start].X && points[i].Y < points[start].Y) {
			start = i
		}
	}

	hull := []Point{}
	p := start
	for {
		hull = append(hull, points[p])
		q := (p + 1) % len(points)

		for i := 0; i < len(points); i++ {
			o := orientation(points[p], points[i], points[q])
			// Prefer the farther point when collinear so duplicates are skipped
			if o == 2 || (o == 0 && dist2(points[p], points[i]) > dist2(points[p], points[q])) {
				q = i
			}
		}

		p = q
		if p == start || len(hull) > len(points) {
			break
		}
	}

	return hull
}

// orientation returns:
// 0 -> Collinear, 1 -> Clockwise, 2 -> Counterclockwise
func orientation(p, q, r Point) int {
	val := (q.Y-p.Y)*(r.X-q.X) - (q.X-p.X)*(r.Y-q.Y)

	if math.Abs(float64(val)) < 1e-9 {
		return 0
	}
	if val > 0 {
		return 1
	}
	return 2
}

func dist2(a, b Point) float32 {
	dx, dy := a.X-b.X, a.Y-b.Y
	return dx*dx + dy*dy
}
