package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/swapper"
)

// fakeDetector answers by image width so source and target can be told apart
type fakeDetector struct {
	mu        sync.Mutex
	regions   map[int][]detector.FaceRegion
	landmarks map[int]*detector.LandmarkSet
	errs      map[int]error
	calls     int

	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeDetector) DetectFaces(img gocv.Mat) ([]detector.FaceRegion, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if err := f.errs[img.Cols()]; err != nil {
		return nil, err
	}
	return f.regions[img.Cols()], nil
}

func (f *fakeDetector) DetectLandmarks(img gocv.Mat, region detector.FaceRegion) (*detector.LandmarkSet, error) {
	return f.landmarks[img.Cols()], nil
}

func (f *fakeDetector) Close() error { return nil }

type staticSettings swapper.BlendConfig

func (s staticSettings) BlendConfig() swapper.BlendConfig { return swapper.BlendConfig(s) }

const (
	srcW = 50
	tgtW = 100
)

func solid(w, h int, v float64) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, v, v, 0), h, w, gocv.MatTypeCV8UC3)
}

func images() (gocv.Mat, gocv.Mat) {
	return solid(srcW, srcW, 200), solid(tgtW, tgtW, 10)
}

func bothFaces() *fakeDetector {
	return &fakeDetector{regions: map[int][]detector.FaceRegion{
		srcW: {{Box: detector.NormBox{X: 0.2, Y: 0.2, Width: 0.6, Height: 0.6}, Confidence: 0.9}},
		tgtW: {{Box: detector.NormBox{X: 0.2, Y: 0.2, Width: 0.4, Height: 0.4}, Confidence: 0.8}},
	}}
}

func newPipeline(t *testing.T, det FaceDetector, cfg swapper.BlendConfig) *Pipeline {
	t.Helper()
	p, err := New(det, staticSettings(cfg), Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func sameBytes(a, b gocv.Mat) bool {
	return a.Cols() == b.Cols() && a.Rows() == b.Rows() && string(a.ToBytes()) == string(b.ToBytes())
}

func gray(m gocv.Mat, x, y int) uint8 {
	return m.GetUCharAt(y, x*3)
}

func TestNewRejectsNilCollaborators(t *testing.T) {
	if _, err := New(nil, staticSettings{}, Config{}); err == nil {
		t.Error("Expected error for nil detector")
	}
	if _, err := New(bothFaces(), nil, Config{}); err == nil {
		t.Error("Expected error for nil settings")
	}
}

func TestProcessSuccess(t *testing.T) {
	source, target := images()
	defer source.Close()
	defer target.Close()
	targetBefore := target.Clone()
	defer targetBefore.Close()

	p := newPipeline(t, bothFaces(), swapper.DefaultBlendConfig())

	var progress []int
	var states []State
	res := p.ProcessWithProgress(context.Background(), source, target, func(pct int, s State) {
		progress = append(progress, pct)
		states = append(states, s)
	})
	defer res.Close()

	if !res.Success || res.Outcome != OutcomeSuccess || res.Err != nil {
		t.Fatalf("Expected success, got %v (%v)", res.Outcome, res.Err)
	}
	if res.State != StateDone {
		t.Errorf("Expected state done, got %v", res.State)
	}

	want := []int{10, 20, 30, 40, 60, 80, 100}
	if len(progress) != len(want) {
		t.Fatalf("Expected milestones %v, got %v", want, progress)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Errorf("Milestone %d: got %d, want %d", i, progress[i], want[i])
		}
	}
	if states[0] != StateDetectingSource || states[len(states)-1] != StateDone {
		t.Errorf("Unexpected state sequence %v", states)
	}

	if res.Image.Cols() != tgtW || res.Image.Rows() != tgtW {
		t.Errorf("Output must keep target size, got %dx%d", res.Image.Cols(), res.Image.Rows())
	}
	if v := gray(res.Image, 40, 40); v != 200 {
		t.Errorf("Inside target box: got %d, want source value 200", v)
	}
	if v := gray(res.Image, 80, 80); v != 10 {
		t.Errorf("Outside target box: got %d, want target value 10", v)
	}
	if !sameBytes(target, targetBefore) {
		t.Error("Process must not modify its inputs")
	}
	if res.ID.String() == "" || res.Timing.Total <= 0 {
		t.Errorf("Expected ID and timing, got %v %v", res.ID, res.Timing)
	}
}

func TestProcessIsIdempotent(t *testing.T) {
	source, target := images()
	defer source.Close()
	defer target.Close()

	p := newPipeline(t, bothFaces(), swapper.BlendConfig{Intensity: 0.6})

	first := p.Process(context.Background(), source, target)
	defer first.Close()
	second := p.Process(context.Background(), source, target)
	defer second.Close()

	if !sameBytes(first.Image, second.Image) {
		t.Error("Expected identical output for identical input")
	}
	if first.ID == second.ID {
		t.Error("Each invocation needs its own ID")
	}
}

func TestProcessFailures(t *testing.T) {
	backendErr := errors.New("vision backend down")

	tests := []struct {
		name    string
		det     func() *fakeDetector
		outcome Outcome
		is      error
	}{
		{
			name: "no source face",
			det: func() *fakeDetector {
				d := bothFaces()
				delete(d.regions, srcW)
				return d
			},
			outcome: OutcomeNoFaces,
			is:      detector.ErrNoFaces,
		},
		{
			name: "no target face",
			det: func() *fakeDetector {
				d := bothFaces()
				delete(d.regions, tgtW)
				return d
			},
			outcome: OutcomeNoFaces,
			is:      detector.ErrNoFaces,
		},
		{
			name: "backend failure",
			det: func() *fakeDetector {
				d := bothFaces()
				d.errs = map[int]error{tgtW: errors.Join(detector.ErrBackendFailure, backendErr)}
				return d
			},
			outcome: OutcomeBackendFailure,
			is:      backendErr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, target := images()
			defer source.Close()
			defer target.Close()

			res := newPipeline(t, tt.det(), swapper.DefaultBlendConfig()).Process(context.Background(), source, target)
			defer res.Close()

			if res.Success {
				t.Fatal("Expected failure")
			}
			if res.Outcome != tt.outcome {
				t.Errorf("Expected outcome %v, got %v", tt.outcome, res.Outcome)
			}
			if !errors.Is(res.Err, tt.is) {
				t.Errorf("Expected error %v, got %v", tt.is, res.Err)
			}
			if res.State != StateFailed {
				t.Errorf("Expected failed state, got %v", res.State)
			}
			if !sameBytes(res.Image, target) {
				t.Error("Failure must return the target unchanged")
			}
		})
	}
}

func TestProcessInvalidImages(t *testing.T) {
	source, target := images()
	defer source.Close()
	defer target.Close()
	empty := gocv.NewMat()
	defer empty.Close()

	det := bothFaces()
	p := newPipeline(t, det, swapper.DefaultBlendConfig())

	res := p.Process(context.Background(), empty, target)
	if res.Outcome != OutcomeInvalidImage || !sameBytes(res.Image, target) {
		t.Errorf("Empty source: got %v", res.Outcome)
	}
	res.Close()

	res = p.Process(context.Background(), source, empty)
	if res.Outcome != OutcomeInvalidImage || !res.Image.Empty() {
		t.Errorf("Empty target: got %v", res.Outcome)
	}
	res.Close()

	if det.calls != 0 {
		t.Error("Detector should not run on invalid input")
	}
}

func TestProcessCanceled(t *testing.T) {
	source, target := images()
	defer source.Close()
	defer target.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newPipeline(t, bothFaces(), swapper.DefaultBlendConfig()).Process(ctx, source, target)
	defer res.Close()

	if res.Outcome != OutcomeCanceled || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Expected cancellation, got %v (%v)", res.Outcome, res.Err)
	}
	if !sameBytes(res.Image, target) {
		t.Error("Canceled invocation must return the target unchanged")
	}
}

func TestProcessUsesContourMask(t *testing.T) {
	source, target := images()
	defer source.Close()
	defer target.Close()

	det := bothFaces()
	// Contour covers only the left half of the 20..60 target box
	det.landmarks = map[int]*detector.LandmarkSet{
		tgtW: {Contour: []detector.Point{{X: 0.2, Y: 0.2}, {X: 0.4, Y: 0.2}, {X: 0.4, Y: 0.6}, {X: 0.2, Y: 0.6}}},
	}

	res := newPipeline(t, det, swapper.DefaultBlendConfig()).Process(context.Background(), source, target)
	defer res.Close()

	if !res.Success {
		t.Fatalf("Expected success, got %v", res.Err)
	}
	if v := gray(res.Image, 30, 40); v != 200 {
		t.Errorf("Inside contour: got %d, want 200", v)
	}
	if v := gray(res.Image, 50, 40); v != 10 {
		t.Errorf("Inside box but outside contour: got %d, want 10", v)
	}
}

func TestProcessPreserveMouth(t *testing.T) {
	source, target := images()
	defer source.Close()
	defer target.Close()

	det := bothFaces()
	det.landmarks = map[int]*detector.LandmarkSet{
		tgtW: {
			Contour: []detector.Point{{X: 0.2, Y: 0.2}, {X: 0.6, Y: 0.2}, {X: 0.6, Y: 0.6}, {X: 0.2, Y: 0.6}},
			Mouth:   []detector.Point{{X: 0.35, Y: 0.45}, {X: 0.45, Y: 0.45}, {X: 0.45, Y: 0.55}, {X: 0.35, Y: 0.55}},
		},
	}

	res := newPipeline(t, det, swapper.BlendConfig{Intensity: 1, PreserveMouth: true}).
		Process(context.Background(), source, target)
	defer res.Close()

	if v := gray(res.Image, 40, 50); v != 10 {
		t.Errorf("Preserved mouth: got %d, want target value 10", v)
	}
	if v := gray(res.Image, 30, 30); v != 200 {
		t.Errorf("Rest of the face: got %d, want source value 200", v)
	}
}

func TestProcessAlignsTiltedSource(t *testing.T) {
	// Source with a tilted eye line: the crop still has the box size
	source, target := images()
	defer source.Close()
	defer target.Close()

	det := bothFaces()
	det.landmarks = map[int]*detector.LandmarkSet{
		srcW: {LeftEye: &detector.Point{X: 0.3, Y: 0.4}, RightEye: &detector.Point{X: 0.7, Y: 0.5}},
	}

	res := newPipeline(t, det, swapper.DefaultBlendConfig()).Process(context.Background(), source, target)
	defer res.Close()

	if !res.Success {
		t.Fatalf("Expected success, got %v", res.Err)
	}
	if v := gray(res.Image, 40, 40); v != 200 {
		t.Errorf("Centre of target box: got %d, want 200", v)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeSuccess},
		{detector.ErrNoFaces, OutcomeNoFaces},
		{detector.ErrInvalidImage, OutcomeInvalidImage},
		{swapper.ErrInvalidImage, OutcomeInvalidImage},
		{context.Canceled, OutcomeCanceled},
		{errors.New("anything else"), OutcomeBackendFailure},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestEyeRegions(t *testing.T) {
	marks := &detector.LandmarkSet{
		LeftEye:  &detector.Point{X: 0.3, Y: 0.4},
		RightEye: &detector.Point{X: 0.8, Y: 0.4},
	}
	regions := eyeRegions(marks, image.Pt(100, 100))
	if len(regions) != 2 {
		t.Fatalf("Expected 2 regions, got %d", len(regions))
	}
	if regions[0][0] != image.Pt(20, 40) || regions[0][1] != image.Pt(40, 40) {
		t.Errorf("Unexpected left eye segment %v", regions[0])
	}
}

func TestProcessScalesSourceFaceIntoTargetBox(t *testing.T) {
	// 400x400 source with its face at (50,50,100,100), 640x480 target with its
	// face at (100,100,80,80): the crop is scaled by 0.8 to 80x80 at (100,100)
	source := solid(400, 400, 200)
	defer source.Close()
	face := source.Region(image.Rect(50, 50, 150, 150))
	face.SetTo(gocv.NewScalar(120, 120, 120, 0))
	face.Close()

	target := solid(640, 480, 10)
	defer target.Close()

	det := &fakeDetector{regions: map[int][]detector.FaceRegion{
		400: {{Box: detector.Normalize(detector.BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}, 400, 400), Confidence: 0.9}},
		640: {{Box: detector.Normalize(detector.BoundingBox{X1: 100, Y1: 100, X2: 180, Y2: 180}, 640, 480), Confidence: 0.9}},
	}}
	p := newPipeline(t, det, swapper.DefaultBlendConfig())

	res := p.Process(context.Background(), source, target)
	defer res.Close()

	if !res.Success {
		t.Fatalf("Expected success, got %v (%v)", res.Outcome, res.Err)
	}
	if res.Image.Cols() != 640 || res.Image.Rows() != 480 {
		t.Fatalf("Output must stay 640x480, got %dx%d", res.Image.Cols(), res.Image.Rows())
	}

	tests := []struct {
		x, y int
		want uint8
	}{
		{100, 100, 120}, // top-left of the placed crop
		{179, 179, 120}, // bottom-right of the placed crop
		{140, 140, 120},
		{99, 140, 10},  // left of the box
		{140, 99, 10},  // above the box
		{180, 140, 10}, // an unscaled 100x100 crop would still cover this
		{140, 185, 10},
	}
	for _, tt := range tests {
		if got := gray(res.Image, tt.x, tt.y); got != tt.want {
			t.Errorf("pixel (%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}
