package detector

import (
	"fmt"
	"os"
	"path/filepath"

	pigo "github.com/esimov/pigo/core"
	"gocv.io/x/gocv"
)

// PigoConfig configures the pure-Go pigo backend. PuplocCascade and FlplocDir
// are optional; without them faces carry no eye or mouth keypoints.
type PigoConfig struct {
	FaceCascade   string
	PuplocCascade string
	FlplocDir     string

	MinSize          int
	MaxSize          int
	ShiftFactor      float64
	ScaleFactor      float64
	IoUThreshold     float64
	QualityThreshold float32
	Angle            float64
	Perturb          int
}

// DefaultPigoConfig returns the detection parameters used by the pigo examples
func DefaultPigoConfig(cascadeDir string) PigoConfig {
	return PigoConfig{
		FaceCascade:      filepath.Join(cascadeDir, "facefinder"),
		PuplocCascade:    filepath.Join(cascadeDir, "puploc"),
		FlplocDir:        filepath.Join(cascadeDir, "lps"),
		MinSize:          20,
		MaxSize:          1000,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
		Perturb:          63,
	}
}

// mouth cascades in the order they are traced around the lips;
// lp84 is run twice, the second time mirrored for the other corner
var mouthCascades = []struct {
	name  string
	flipV bool
}{
	{"lp84", false},
	{"lp93", false},
	{"lp84", true},
	{"lp82", false},
	{"lp81", false},
}

// Pigo implements the pigo cascade face detector
type Pigo struct {
	cfg        PigoConfig
	classifier *pigo.Pigo
	puploc     *pigo.PuplocCascade
	flploc     map[string][]*pigo.FlpCascade
}

// NewPigo loads the pigo cascades
func NewPigo(cfg PigoConfig) (*Pigo, error) {
	data, err := os.ReadFile(cfg.FaceCascade)
	if err != nil {
		return nil, fmt.Errorf("failed to read face cascade: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack face cascade: %w", err)
	}

	p := &Pigo{cfg: cfg, classifier: classifier}

	if cfg.PuplocCascade != "" {
		data, err := os.ReadFile(cfg.PuplocCascade)
		if err != nil {
			return nil, fmt.Errorf("failed to read puploc cascade: %w", err)
		}
		pl := pigo.NewPuplocCascade()
		p.puploc, err = pl.UnpackCascade(data)
		if err != nil {
			return nil, fmt.Errorf("failed to unpack puploc cascade: %w", err)
		}

		if cfg.FlplocDir != "" {
			p.flploc, err = pl.ReadCascadeDir(cfg.FlplocDir)
			if err != nil {
				return nil, fmt.Errorf("failed to read flploc cascades: %w", err)
			}
		}
	}

	return p, nil
}

// Detect finds faces in a BGR image
func (p *Pigo) Detect(img gocv.Mat) ([]Face, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	imgParams := pigo.ImageParams{
		Pixels: gray.ToBytes(),
		Rows:   gray.Rows(),
		Cols:   gray.Cols(),
		Dim:    gray.Cols(),
	}

	cParams := pigo.CascadeParams{
		MinSize:     p.cfg.MinSize,
		MaxSize:     p.cfg.MaxSize,
		ShiftFactor: p.cfg.ShiftFactor,
		ScaleFactor: p.cfg.ScaleFactor,
		ImageParams: imgParams,
	}

	dets := p.classifier.RunCascade(cParams, p.cfg.Angle)
	dets = p.classifier.ClusterDetections(dets, p.cfg.IoUThreshold)

	faces := make([]Face, 0, len(dets))
	for _, det := range dets {
		if det.Q < p.cfg.QualityThreshold {
			continue
		}

		// Row/Col is the centre, Scale the side length
		half := float32(det.Scale) / 2
		face := Face{
			BoundingBox: BoundingBox{
				X1: clamp(float32(det.Col)-half, 0, float32(gray.Cols())),
				Y1: clamp(float32(det.Row)-half, 0, float32(gray.Rows())),
				X2: clamp(float32(det.Col)+half, 0, float32(gray.Cols())),
				Y2: clamp(float32(det.Row)+half, 0, float32(gray.Rows())),
			},
			Score: det.Q / 100,
		}
		p.locateKeypoints(&face, det, imgParams)
		faces = append(faces, face)
	}

	sortByScore(faces)
	return faces, nil
}

// locateKeypoints runs the pupil and facial landmark cascades around det
func (p *Pigo) locateKeypoints(face *Face, det pigo.Detection, img pigo.ImageParams) {
	if p.puploc == nil {
		return
	}

	eye := func(colOffset float32) *pigo.Puploc {
		return p.puploc.RunDetector(pigo.Puploc{
			Row:      det.Row - int(0.075*float32(det.Scale)),
			Col:      det.Col + int(colOffset*float32(det.Scale)),
			Scale:    float32(det.Scale) * 0.25,
			Perturbs: p.cfg.Perturb,
		}, img, p.cfg.Angle, false)
	}

	leftEye := eye(-0.175)
	rightEye := eye(0.185)
	if found(leftEye) {
		face.LeftEye = &Point{X: float32(leftEye.Col), Y: float32(leftEye.Row)}
	}
	if found(rightEye) {
		face.RightEye = &Point{X: float32(rightEye.Col), Y: float32(rightEye.Row)}
	}

	if face.LeftEye == nil || face.RightEye == nil || p.flploc == nil {
		return
	}

	for _, mc := range mouthCascades {
		cascades, ok := p.flploc[mc.name]
		if !ok || len(cascades) == 0 {
			continue
		}
		flp := cascades[0].FindLandmarkPoints(leftEye, rightEye, img, p.cfg.Perturb, mc.flipV)
		if found(flp) {
			face.Mouth = append(face.Mouth, Point{X: float32(flp.Col), Y: float32(flp.Row)})
		}
	}
}

// Close releases detector resources
func (p *Pigo) Close() error {
	p.classifier = nil
	p.puploc = nil
	p.flploc = nil
	return nil
}

func found(pl *pigo.Puploc) bool {
	return pl != nil && pl.Row > 0 && pl.Col > 0
}
