package inference

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// TensorInfo describes one model input or output.
type TensorInfo struct {
	Name       string
	Dimensions []int64
	DataType   string
}

// ModelInfo is what Inspect learns about a model file.
type ModelInfo struct {
	Path        string
	Inputs      []TensorInfo
	Outputs     []TensorInfo
	Producer    string
	Version     int64
	Domain      string
	Description string
}

// Inspect reads the input/output signature and metadata of an ONNX model.
// Initialize must have been called.
func Inspect(modelPath string) (*ModelInfo, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, errors.Wrapf(err, "model %s", modelPath)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "read model info from %s", modelPath)
	}

	info := &ModelInfo{
		Path:    modelPath,
		Inputs:  tensorInfos(inputs),
		Outputs: tensorInfos(outputs),
	}

	// Metadata is optional; plenty of exported models carry none.
	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return info, nil
	}
	defer metadata.Destroy()
	if v, err := metadata.GetProducerName(); err == nil {
		info.Producer = v
	}
	if v, err := metadata.GetVersion(); err == nil {
		info.Version = v
	}
	if v, err := metadata.GetDomain(); err == nil {
		info.Domain = v
	}
	if v, err := metadata.GetDescription(); err == nil {
		info.Description = v
	}
	return info, nil
}

func tensorInfos(in []ort.InputOutputInfo) []TensorInfo {
	out := make([]TensorInfo, len(in))
	for i, v := range in {
		out[i] = TensorInfo{
			Name:       v.Name,
			Dimensions: []int64(v.Dimensions),
			DataType:   fmt.Sprint(v.DataType),
		}
	}
	return out
}
