package inference

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/tsawler/go-metal/checkpoints"
)

// MetalLayer is one layer of a model imported by go-metal.
type MetalLayer struct {
	Name string
	Type string
}

// MetalReport is the result of importing a model with go-metal.
type MetalReport struct {
	Layers  []MetalLayer
	Weights int
}

// CheckMetalImport tries to import an ONNX model with go-metal's importer.
// go-metal only understands a small operator set (Conv, MatMul, Add, Relu,
// LeakyRelu, Sigmoid, Tanh, BatchNorm, Dropout, Softmax, Flatten), so
// failure usually means the model uses something else.
func CheckMetalImport(modelPath string) (*MetalReport, error) {
	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(modelPath)
	if err != nil {
		return nil, errors.WithHint(errors.Wrapf(err, "go-metal import of %s", modelPath),
			"the model probably uses operators go-metal does not support")
	}

	report := &MetalReport{Weights: len(checkpoint.Weights)}
	for _, layer := range checkpoint.ModelSpec.Layers {
		report.Layers = append(report.Layers, MetalLayer{Name: layer.Name, Type: fmt.Sprint(layer.Type)})
	}
	return report, nil
}
