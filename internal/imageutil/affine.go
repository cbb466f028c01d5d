package imageutil

import (
	"math"

	"gocv.io/x/gocv"
)

// Affine is a 2x3 affine transform in OpenCV layout:
// x' = a[0][0]*x + a[0][1]*y + a[0][2]
// y' = a[1][0]*x + a[1][1]*y + a[1][2]
type Affine [2][3]float64

// Identity returns the identity transform
func Identity() Affine {
	return Affine{{1, 0, 0}, {0, 1, 0}}
}

// Apply maps a point through the transform
func (a Affine) Apply(x, y float64) (float64, float64) {
	return a[0][0]*x + a[0][1]*y + a[0][2],
		a[1][0]*x + a[1][1]*y + a[1][2]
}

// Then returns the transform equivalent to applying a first and next second
func (a Affine) Then(next Affine) Affine {
	var r Affine
	for i := 0; i < 2; i++ {
		r[i][0] = next[i][0]*a[0][0] + next[i][1]*a[1][0]
		r[i][1] = next[i][0]*a[0][1] + next[i][1]*a[1][1]
		r[i][2] = next[i][0]*a[0][2] + next[i][1]*a[1][2] + next[i][2]
	}
	return r
}

// Invert returns the inverse transform. ok is false for a singular transform.
func (a Affine) Invert() (inv Affine, ok bool) {
	det := a[0][0]*a[1][1] - a[0][1]*a[1][0]
	if math.Abs(det) < 1e-12 {
		return Affine{}, false
	}

	i00 := a[1][1] / det
	i01 := -a[0][1] / det
	i10 := -a[1][0] / det
	i11 := a[0][0] / det

	return Affine{
		{i00, i01, -(i00*a[0][2] + i01*a[1][2])},
		{i10, i11, -(i10*a[0][2] + i11*a[1][2])},
	}, true
}

// Mat converts the transform to a 2x3 CV64F matrix. The caller must Close it.
func (a Affine) Mat() gocv.Mat {
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	for i := 0; i < 2; i++ {
		for j := 0; j < 3; j++ {
			m.SetDoubleAt(i, j, a[i][j])
		}
	}
	return m
}
