package imageutil

import (
	"image/color"
	"math"
	"testing"

	"gocv.io/x/gocv"
)

// gradient builds a BGR image whose blue channel rises linearly along x and
// green along y. Bilinear resampling of a linear ramp is exact up to rounding,
// which keeps round-trip comparisons tight.
func gradient(w, h int) gocv.Mat {
	img := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetUCharAt(y, x*3, uint8(x*200/w))
			img.SetUCharAt(y, x*3+1, uint8(y*200/h))
			img.SetUCharAt(y, x*3+2, 100)
		}
	}
	return img
}

func TestResize(t *testing.T) {
	img := gradient(64, 32)
	defer img.Close()

	out, err := Resize(img, 16, 40)
	if err != nil {
		t.Fatalf("Resize failed: %v", err)
	}
	defer out.Close()

	if out.Cols() != 16 || out.Rows() != 40 {
		t.Errorf("Expected 16x40, got %dx%d", out.Cols(), out.Rows())
	}

	if _, err := Resize(img, 0, 10); err == nil {
		t.Error("Expected error for zero width")
	}

	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := Resize(empty, 10, 10); err != ErrEmptyImage {
		t.Errorf("Expected ErrEmptyImage, got %v", err)
	}
}

func TestScaleToFit(t *testing.T) {
	tests := []struct {
		name      string
		w, h      int
		maxDim    int
		wantW     int
		wantH     int
		wantScale float64
	}{
		{"already fits", 100, 50, 200, 100, 50, 1},
		{"landscape", 400, 200, 100, 100, 50, 0.25},
		{"portrait", 300, 600, 150, 75, 150, 0.25},
		{"disabled", 400, 200, 0, 400, 200, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := gradient(tt.w, tt.h)
			defer img.Close()

			out, scale, err := ScaleToFit(img, tt.maxDim)
			if err != nil {
				t.Fatalf("ScaleToFit failed: %v", err)
			}
			defer out.Close()

			if out.Cols() != tt.wantW || out.Rows() != tt.wantH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.wantW, tt.wantH, out.Cols(), out.Rows())
			}
			if math.Abs(scale-tt.wantScale) > 1e-9 {
				t.Errorf("Expected scale %f, got %f", tt.wantScale, scale)
			}
		})
	}
}

func TestRotateExpandsCanvas(t *testing.T) {
	img := gradient(200, 100)
	defer img.Close()

	out, _, err := Rotate(img, math.Pi/2, color.RGBA{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	defer out.Close()

	// A quarter turn swaps the dimensions
	if out.Cols() != 100 || out.Rows() != 200 {
		t.Errorf("Expected 100x200 canvas, got %dx%d", out.Cols(), out.Rows())
	}

	out45, _, err := Rotate(img, math.Pi/4, color.RGBA{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	defer out45.Close()

	want := int(math.Round(300 / math.Sqrt2))
	if out45.Cols() != want || out45.Rows() != want {
		t.Errorf("Expected %dx%d canvas, got %dx%d", want, want, out45.Cols(), out45.Rows())
	}
}

func TestRotateQuarterTurnRoundTripIsExact(t *testing.T) {
	img := gradient(120, 80)
	defer img.Close()

	once, _, err := Rotate(img, math.Pi/2, color.RGBA{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	defer once.Close()

	back, _, err := Rotate(once, -math.Pi/2, color.RGBA{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	defer back.Close()

	if back.Cols() != img.Cols() || back.Rows() != img.Rows() {
		t.Fatalf("Expected %dx%d, got %dx%d", img.Cols(), img.Rows(), back.Cols(), back.Rows())
	}

	for y := 0; y < img.Rows(); y++ {
		for x := 0; x < img.Cols()*3; x++ {
			if d := int(img.GetUCharAt(y, x)) - int(back.GetUCharAt(y, x)); d < -1 || d > 1 {
				t.Fatalf("Pixel (%d,%d) differs by %d", x/3, y, d)
			}
		}
	}
}

func TestRotateRoundTripWithinTolerance(t *testing.T) {
	img := gradient(200, 160)
	defer img.Close()

	theta := math.Pi / 6

	once, fwd, err := Rotate(img, theta, color.RGBA{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	defer once.Close()

	back, rev, err := Rotate(once, -theta, color.RGBA{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	defer back.Close()

	// The composed transform must be a pure translation
	total := fwd.Then(rev)
	if math.Abs(total[0][0]-1) > 1e-9 || math.Abs(total[0][1]) > 1e-9 ||
		math.Abs(total[1][0]) > 1e-9 || math.Abs(total[1][1]-1) > 1e-9 {
		t.Fatalf("Expected pure translation, got %v", total)
	}

	// Compare the interior, away from the interpolated borders
	const margin = 12
	worst := 0
	for y := margin; y < img.Rows()-margin; y++ {
		for x := margin; x < img.Cols()-margin; x++ {
			bx, by := total.Apply(float64(x), float64(y))
			px, py := int(math.Round(bx)), int(math.Round(by))
			for ch := 0; ch < 3; ch++ {
				d := int(img.GetUCharAt(y, x*3+ch)) - int(back.GetUCharAt(py, px*3+ch))
				if d < 0 {
					d = -d
				}
				worst = max(worst, d)
			}
		}
	}
	if worst > 4 {
		t.Errorf("Round trip differs by up to %d levels, want <= 4", worst)
	}
}

func TestRotateZeroIsIdentity(t *testing.T) {
	img := gradient(50, 30)
	defer img.Close()

	out, tr, err := Rotate(img, 0, color.RGBA{})
	if err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	defer out.Close()

	if tr != Identity() {
		t.Errorf("Expected identity transform, got %v", tr)
	}
	if string(out.ToBytes()) != string(img.ToBytes()) {
		t.Error("Expected identical pixels")
	}
}

func TestRotate90(t *testing.T) {
	img := gradient(40, 20)
	defer img.Close()

	for turns, want := range map[int][2]int{0: {40, 20}, 1: {20, 40}, 2: {40, 20}, -1: {20, 40}, 7: {20, 40}} {
		out, err := Rotate90(img, turns)
		if err != nil {
			t.Fatalf("Rotate90(%d) failed: %v", turns, err)
		}
		if out.Cols() != want[0] || out.Rows() != want[1] {
			t.Errorf("Rotate90(%d): expected %dx%d, got %dx%d", turns, want[0], want[1], out.Cols(), out.Rows())
		}
		out.Close()
	}
}

func TestRecompressKeepsDimensions(t *testing.T) {
	img := gradient(64, 48)
	defer img.Close()

	out, err := Recompress(img, 80)
	if err != nil {
		t.Fatalf("Recompress failed: %v", err)
	}
	defer out.Close()

	if out.Cols() != 64 || out.Rows() != 48 || out.Channels() != 3 {
		t.Errorf("Unexpected recompressed shape %dx%dx%d", out.Cols(), out.Rows(), out.Channels())
	}
}

func TestAffineInvert(t *testing.T) {
	a := Affine{{0.8, -0.6, 10}, {0.6, 0.8, -4}}
	inv, ok := a.Invert()
	if !ok {
		t.Fatal("Expected invertible transform")
	}

	x, y := a.Apply(3, 7)
	bx, by := inv.Apply(x, y)
	if math.Abs(bx-3) > 1e-9 || math.Abs(by-7) > 1e-9 {
		t.Errorf("Expected (3,7), got (%f,%f)", bx, by)
	}

	if _, ok := (Affine{}).Invert(); ok {
		t.Error("Expected singular transform to fail")
	}
}

func TestEnsureBGR(t *testing.T) {
	gray := gocv.NewMatWithSize(10, 12, gocv.MatTypeCV8UC1)
	defer gray.Close()

	out, err := EnsureBGR(gray)
	if err != nil {
		t.Fatalf("EnsureBGR failed: %v", err)
	}
	defer out.Close()

	if out.Channels() != 3 || out.Type() != gocv.MatTypeCV8UC3 {
		t.Errorf("Expected CV8UC3, got type %v with %d channels", out.Type(), out.Channels())
	}
}
