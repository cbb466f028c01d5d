package detector

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/inference"
)

// SCRFDConfig configures the ONNX SCRFD backend
type SCRFDConfig struct {
	ModelPath     string
	InputSize     int
	ConfThreshold float32
	NMSThreshold  float32
	Session       inference.SessionOptions
}

// SCRFD implements the SCRFD face detector
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float32
	featureStrides []int
	numAnchors     int
}

// NewSCRFD creates a new SCRFD detector
func NewSCRFD(cfg SCRFDConfig) (*SCRFD, error) {
	if cfg.InputSize <= 0 || cfg.InputSize%32 != 0 {
		return nil, fmt.Errorf("SCRFD input size must be a positive multiple of 32, got %d", cfg.InputSize)
	}

	// 1 input and 9 outputs (3 levels x score, bbox, kps)
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(cfg.ModelPath, inputNames, outputNames, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	return &SCRFD{
		session:        session,
		inputSize:      cfg.InputSize,
		confThreshold:  cfg.ConfThreshold,
		nmsThreshold:   cfg.NMSThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2,
	}, nil
}

// Detect finds faces in a BGR image
func (s *SCRFD) Detect(img gocv.Mat) ([]Face, error) {
	origHeight := img.Rows()
	origWidth := img.Cols()

	inputBlob, scale := s.preprocess(img)
	defer inputBlob.Close()

	inputTensor, err := inference.CreateTensor(
		[]int64{1, 3, int64(s.inputSize), int64(s.inputSize)},
		bytesToFloat32(inputBlob.ToBytes()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 9)
	outputTensors := make([]*ort.Tensor[float32], 0, 9)
	defer func() {
		for _, t := range outputTensors {
			t.Destroy()
		}
	}()

	widths := []int64{1, 4, 10} // score, bbox, kps
	for kind, width := range widths {
		for level, stride := range s.featureStrides {
			side := int64(s.inputSize / stride)
			t, err := inference.CreateEmptyTensor[float32]([]int64{side * side * int64(s.numAnchors), width})
			if err != nil {
				return nil, fmt.Errorf("failed to create output tensor: %w", err)
			}
			outputs[kind*3+level] = t
			outputTensors = append(outputTensors, t)
		}
	}

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	faces := s.postprocess(outputTensors, scale, origWidth, origHeight)
	return nms(faces, s.nmsThreshold), nil
}

// preprocess letterboxes the image into the model input and normalizes it
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	height := img.Rows()
	width := img.Cols()

	scale := float32(s.inputSize) / float32(max(height, width))

	newWidth := max(1, int(float32(width)*scale))
	newHeight := max(1, int(float32(height)*scale))

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)

	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()
	resized.Close()

	// (x - 127.5) / 128 in RGB, NCHW
	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	padded.Close()

	return blob, scale
}

// postprocess decodes model outputs to faces
func (s *SCRFD) postprocess(outputs []*ort.Tensor[float32], scale float32, origWidth, origHeight int) []Face {
	var faces []Face

	for level, stride := range s.featureStrides {
		fmSide := s.inputSize / stride
		fs := float32(stride)

		scoreData := outputs[level].GetData()
		bboxData := outputs[level+3].GetData()
		kpsData := outputs[level+6].GetData()

		anchorIdx := 0
		for y := 0; y < fmSide; y++ {
			for x := 0; x < fmSide; x++ {
				for a := 0; a < s.numAnchors; a++ {
					score := scoreData[anchorIdx]
					if score < 0 || score > 1 {
						score = sigmoid(score)
					}

					if score > s.confThreshold {
						face := decodeAnchor(x, y, fs, scale,
							bboxData[anchorIdx*4:anchorIdx*4+4],
							kpsData[anchorIdx*10:anchorIdx*10+10],
							origWidth, origHeight)
						face.Score = score
						faces = append(faces, face)
					}
					anchorIdx++
				}
			}
		}
	}

	return faces
}

// decodeAnchor turns the distance predictions of the anchor at feature cell
// (x, y) into a face in original image pixels. Anchor centres sit on the
// stride grid; b holds distances to the four edges and k five keypoint
// offsets, all in stride units.
func decodeAnchor(x, y int, stride, scale float32, b, k []float32, origWidth, origHeight int) Face {
	cx := float32(x) * stride
	cy := float32(y) * stride

	box := BoundingBox{
		X1: clamp((cx-b[0]*stride)/scale, 0, float32(origWidth)),
		Y1: clamp((cy-b[1]*stride)/scale, 0, float32(origHeight)),
		X2: clamp((cx+b[2]*stride)/scale, 0, float32(origWidth)),
		Y2: clamp((cy+b[3]*stride)/scale, 0, float32(origHeight)),
	}

	kp := func(i int) Point {
		return Point{(cx + k[i*2]*stride) / scale, (cy + k[i*2+1]*stride) / scale}
	}

	face := Face{BoundingBox: box}
	face.setFivePoint(Landmarks{
		LeftEye:    kp(0),
		RightEye:   kp(1),
		Nose:       kp(2),
		LeftMouth:  kp(3),
		RightMouth: kp(4),
	})
	return face
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}
