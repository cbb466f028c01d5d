// Package pipeline runs the face overlay stages in order: detect the source
// and target faces, align the source by its eyes, build the target mask and
// composite. Invocations are independent; the Runner executes them on
// background workers and the Publisher keeps the newest finished frame.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/imageutil"
	"github.com/dudu/faceswap/internal/swapper"
)

// DefaultCarveExpand enlarges preserved mouth and eye regions by 20%
const DefaultCarveExpand = 1.2

// Config holds pipeline configuration
type Config struct {
	// CarveExpand scales preserved regions about their centre before carving
	CarveExpand float64
	// Verbose logs every invocation, not only failures
	Verbose bool
}

// Pipeline orchestrates the face overlay process
type Pipeline struct {
	config   Config
	detector FaceDetector
	settings SettingsProvider
}

// New creates a pipeline around its collaborators. The pipeline takes
// ownership of det and closes it in Close.
func New(det FaceDetector, settings SettingsProvider, config Config) (*Pipeline, error) {
	if det == nil {
		return nil, errors.New("pipeline: nil face detector")
	}
	if settings == nil {
		return nil, errors.New("pipeline: nil settings provider")
	}
	if config.CarveExpand <= 0 {
		config.CarveExpand = DefaultCarveExpand
	}

	return &Pipeline{
		config:   config,
		detector: det,
		settings: settings,
	}, nil
}

// invocation tracks one run through the state machine
type invocation struct {
	id       uuid.UUID
	state    State
	progress ProgressFunc
	timing   Timing
	start    time.Time
}

func (inv *invocation) enter(s State, percent int) {
	inv.state = s
	if inv.progress != nil {
		inv.progress(percent, s)
	}
}

// Process overlays the first face found in source onto the first face found
// in target. It never panics on bad input and never returns an error: failures
// are reported in the Result, whose Image is then a copy of target.
func (p *Pipeline) Process(ctx context.Context, source, target gocv.Mat) Result {
	return p.ProcessWithProgress(ctx, source, target, nil)
}

// ProcessWithProgress is Process with progress milestones reported to progress
func (p *Pipeline) ProcessWithProgress(ctx context.Context, source, target gocv.Mat, progress ProgressFunc) Result {
	inv := &invocation{id: uuid.New(), state: StateIdle, progress: progress, start: time.Now()}

	res := p.run(ctx, inv, source, target)
	res.ID = inv.id
	res.State = inv.state
	inv.timing.Total = time.Since(inv.start)
	res.Timing = inv.timing

	if !res.Success {
		log.Printf("[pipeline] %s failed (%s): %v", inv.id, res.Outcome, res.Err)
	} else if p.config.Verbose {
		log.Printf("[pipeline] %s done in %v", inv.id, inv.timing.Total)
	}
	return res
}

func (p *Pipeline) run(ctx context.Context, inv *invocation, source, target gocv.Mat) Result {
	fail := func(err error) Result {
		inv.state = StateFailed
		return Result{
			Outcome: classify(err),
			Err:     err,
			Image:   target.Clone(),
		}
	}

	if !imageutil.Valid(target) {
		return fail(fmt.Errorf("target: %w", detector.ErrInvalidImage))
	}
	if !imageutil.Valid(source) {
		return fail(fmt.Errorf("source: %w", detector.ErrInvalidImage))
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	cfg := p.settings.BlendConfig().Clamp()

	// Detection
	inv.enter(StateDetectingSource, ProgressSourceStarted)
	stageStart := time.Now()
	srcFace, err := p.firstFace(source)
	if err != nil {
		return fail(fmt.Errorf("source: %w", err))
	}

	inv.enter(StateDetectingTarget, ProgressSourceDetected)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	tgtFace, err := p.firstFace(target)
	inv.timing.Detection = time.Since(stageStart)
	if err != nil {
		return fail(fmt.Errorf("target: %w", err))
	}

	inv.enter(StateAligning, ProgressTargetDetected)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Landmarks are optional: without them alignment is the identity and the
	// overlay is unmasked.
	stageStart = time.Now()
	srcMarks := p.landmarks(source, srcFace, "source")
	tgtMarks := p.landmarks(target, tgtFace, "target")
	inv.timing.Landmarks = time.Since(stageStart)

	// Alignment
	stageStart = time.Now()
	crop, err := cropAligned(source, srcFace, srcMarks)
	inv.timing.Alignment = time.Since(stageStart)
	if err != nil {
		return fail(fmt.Errorf("align: %w", err))
	}
	defer crop.Close()

	inv.enter(StateMasking, ProgressAligned)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Mask
	stageStart = time.Now()
	mask := p.buildMask(imageutil.Size(target), tgtMarks, cfg)
	defer mask.Close()
	inv.timing.Mask = time.Since(stageStart)

	inv.enter(StateCompositing, ProgressMasked)
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	// Composite
	stageStart = time.Now()
	targetBox := tgtFace.Box.Rect(target.Cols(), target.Rows())
	out, err := swapper.Composite(target, crop, targetBox, mask, cfg.Intensity)
	inv.timing.Composite = time.Since(stageStart)
	if err != nil {
		out.Close()
		return fail(fmt.Errorf("composite: %w", err))
	}
	inv.enter(StateCompositing, ProgressComposited)

	inv.enter(StateDone, ProgressDone)
	return Result{Success: true, Outcome: OutcomeSuccess, Image: out}
}

// firstFace returns the highest-confidence face in img
func (p *Pipeline) firstFace(img gocv.Mat) (detector.FaceRegion, error) {
	regions, err := p.detector.DetectFaces(img)
	if err != nil {
		return detector.FaceRegion{}, err
	}
	if len(regions) == 0 {
		return detector.FaceRegion{}, detector.ErrNoFaces
	}
	return regions[0], nil
}

func (p *Pipeline) landmarks(img gocv.Mat, region detector.FaceRegion, which string) *detector.LandmarkSet {
	set, err := p.detector.DetectLandmarks(img, region)
	if err != nil {
		log.Printf("[pipeline] %s landmarks unavailable: %v", which, err)
		return nil
	}
	return set
}

// cropAligned rotates source so its eye line is level and cuts out the face
// box, relocated through the rotation.
func cropAligned(source gocv.Mat, face detector.FaceRegion, marks *detector.LandmarkSet) (gocv.Mat, error) {
	aligned, err := swapper.Align(source, marks)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer aligned.Close()

	box := face.Box.Rect(source.Cols(), source.Rows())
	bounds := image.Rect(0, 0, aligned.Image.Cols(), aligned.Image.Rows())
	rect := swapper.MapRect(box, aligned.Transform, bounds)
	if rect.Empty() {
		return gocv.NewMat(), fmt.Errorf("%w: face box %v is empty after alignment", detector.ErrInvalidImage, box)
	}

	region := aligned.Image.Region(rect)
	defer region.Close()
	return region.Clone(), nil
}

// buildMask rasterizes the target contour and carves out preserved regions.
// It returns nil when the target has no contour.
func (p *Pipeline) buildMask(size image.Point, marks *detector.LandmarkSet, cfg swapper.BlendConfig) *swapper.FaceMask {
	if marks == nil || len(marks.Contour) == 0 {
		return nil
	}

	contour := detector.PixelPoints(marks.Contour, size.X, size.Y)
	var mask *swapper.FaceMask
	if cfg.ConvexMask {
		mask = swapper.BuildHullMask(contour, size)
	} else {
		mask = swapper.BuildMask(contour, size)
	}

	var regions [][]image.Point
	if cfg.PreserveMouth && len(marks.Mouth) > 0 {
		regions = append(regions, detector.PixelPoints(marks.Mouth, size.X, size.Y))
	}
	if cfg.PreserveEyes && marks.HasEyes() {
		regions = append(regions, eyeRegions(marks, size)...)
	}
	swapper.CarveRegions(mask, regions, p.config.CarveExpand)

	if cfg.Feather > 0 {
		soft := swapper.Soften(mask, cfg.Feather)
		mask.Close()
		mask = soft
	}
	return mask
}

// eyeRegions returns a segment across each eye, a fifth of the inter-eye
// distance on each side of its centre along the eye line
func eyeRegions(marks *detector.LandmarkSet, size image.Point) [][]image.Point {
	l := marks.LeftEye.Pixel(size.X, size.Y)
	r := marks.RightEye.Pixel(size.X, size.Y)
	d := r.Sub(l).Div(5)

	return [][]image.Point{
		{l.Sub(d), l.Add(d)},
		{r.Sub(d), r.Add(d)},
	}
}

// classify maps an error onto the Outcome reported to callers
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.Is(err, detector.ErrNoFaces):
		return OutcomeNoFaces
	case errors.Is(err, detector.ErrInvalidImage),
		errors.Is(err, swapper.ErrInvalidImage),
		errors.Is(err, imageutil.ErrEmptyImage):
		return OutcomeInvalidImage
	default:
		return OutcomeBackendFailure
	}
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	if err := p.detector.Close(); err != nil {
		return fmt.Errorf("cleanup errors: %w", err)
	}
	return nil
}
