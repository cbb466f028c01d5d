package ui

import (
	"math"
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func TestFPSCounter(t *testing.T) {
	start := time.Unix(0, 0)
	f := fpsCounter{last: start}

	for i := 1; i < 30; i++ {
		if got := f.tick(start.Add(time.Duration(i) * 10 * time.Millisecond)); got != 0 {
			t.Fatalf("Rate should stay 0 before a second passes, got %f", got)
		}
	}

	// 30th frame lands at two seconds
	got := f.tick(start.Add(2 * time.Second))
	if math.Abs(got-15) > 1e-9 {
		t.Errorf("Expected 15 fps, got %f", got)
	}
	if f.frames != 0 {
		t.Errorf("Frame count should reset, got %d", f.frames)
	}
}

func TestDrawOverlay(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 120, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	DrawOverlay(&frame, []string{"FPS: 30.0", "!no faces"})

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	top := gray.RowRange(0, 60)
	defer top.Close()
	if gocv.CountNonZero(top) == 0 {
		t.Error("Expected overlay text to be drawn")
	}

	bottom := gray.RowRange(80, 120)
	defer bottom.Close()
	if gocv.CountNonZero(bottom) != 0 {
		t.Error("Expected nothing drawn below the last line")
	}
}
