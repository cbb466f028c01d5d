package inference

import (
	"errors"
	"fmt"
	"os"

	"github.com/tsawler/go-metal/checkpoints"
	ort "github.com/yalue/onnxruntime_go"
)

// TensorInfo describes one model input or output
type TensorInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// ModelInfo is what ProbeModel learned about an ONNX file
type ModelInfo struct {
	Path     string
	Inputs   []TensorInfo
	Outputs  []TensorInfo
	Producer string
	Version  int64

	// MetalLayers is the layer count go-metal imported, or -1 if the import failed
	MetalLayers int
	MetalErr    error
}

// ErrModelNotFound is returned when the model file does not exist
var ErrModelNotFound = errors.New("model file not found")

// ProbeModel reads the input/output signature and metadata of an ONNX model
// through ONNX Runtime, then checks whether go-metal can import it. A go-metal
// failure is recorded in MetalErr rather than returned.
func ProbeModel(modelPath string) (*ModelInfo, error) {
	if _, err := os.Stat(modelPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelPath)
		}
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model info: %w", err)
	}

	info := &ModelInfo{
		Path:        modelPath,
		Inputs:      convertInfo(inputs),
		Outputs:     convertInfo(outputs),
		MetalLayers: -1,
	}

	if metadata, err := ort.GetModelMetadata(modelPath); err == nil {
		if producer, err := metadata.GetProducerName(); err == nil {
			info.Producer = producer
		}
		if version, err := metadata.GetVersion(); err == nil {
			info.Version = version
		}
		metadata.Destroy()
	}

	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(modelPath)
	if err != nil {
		info.MetalErr = err
	} else {
		info.MetalLayers = len(checkpoint.ModelSpec.Layers)
	}

	return info, nil
}

func convertInfo(infos []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, 0, len(infos))
	for _, i := range infos {
		out = append(out, TensorInfo{
			Name:       i.Name,
			Dimensions: append([]int64(nil), i.Dimensions...),
			DataType:   fmt.Sprint(i.DataType),
		})
	}
	return out
}
