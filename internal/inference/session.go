// Package inference wraps ONNX Runtime for the landmark models.
package inference

import (
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	initialized bool
	initMu      sync.Mutex
)

// DefaultLibraryPath is where the onnxruntime shared library is expected
// when no path is configured.
func DefaultLibraryPath() string {
	switch runtime.GOOS {
	case "darwin":
		return "lib/libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// Initialize sets up the ONNX Runtime environment. It is safe to call more
// than once; only the first call loads the library.
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}
	if libraryPath == "" {
		libraryPath = DefaultLibraryPath()
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return errors.WithHint(errors.Wrapf(err, "initialize onnxruntime from %s", libraryPath),
			"set detector.library to the onnxruntime shared library")
	}
	initialized = true
	return nil
}

// Shutdown cleans up the ONNX Runtime environment.
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}
	if err := ort.DestroyEnvironment(); err != nil {
		return errors.Wrap(err, "destroy onnxruntime environment")
	}
	initialized = false
	return nil
}

// Provider names the execution provider a session runs on.
type Provider string

const (
	ProviderCPU    Provider = "cpu"
	ProviderCoreML Provider = "coreml"
)

// Session wraps an ONNX Runtime inference session.
type Session struct {
	session     *ort.DynamicAdvancedSession
	modelPath   string
	provider    Provider
	inputNames  []string
	outputNames []string
}

// NewSession loads an ONNX model. On macOS the CoreML execution provider is
// tried first and CPU is used when it is unavailable.
func NewSession(modelPath string, inputNames, outputNames []string) (*Session, error) {
	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, errors.New("onnxruntime not initialized, call Initialize first")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "create session options")
	}
	defer options.Destroy()

	provider := ProviderCPU
	if runtime.GOOS == "darwin" {
		// 0 = default flags: Neural Engine and GPU
		if err := options.AppendExecutionProviderCoreML(0); err == nil {
			provider = ProviderCoreML
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, errors.Wrapf(err, "create session for %s", modelPath)
	}

	return &Session{
		session:     session,
		modelPath:   modelPath,
		provider:    provider,
		inputNames:  inputNames,
		outputNames: outputNames,
	}, nil
}

// Provider reports which execution provider the session uses.
func (s *Session) Provider() Provider { return s.provider }

// ModelPath returns the model file the session was loaded from.
func (s *Session) ModelPath() string { return s.modelPath }

// Run executes inference with the given inputs.
func (s *Session) Run(inputs []ort.Value, outputs []ort.Value) error {
	return s.session.Run(inputs, outputs)
}

// Destroy releases session resources.
func (s *Session) Destroy() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// CreateTensor creates a tensor with the given shape and data.
func CreateTensor[T ort.TensorData](shape []int64, data []T) (*ort.Tensor[T], error) {
	return ort.NewTensor(ort.NewShape(shape...), data)
}

// CreateEmptyTensor creates a zeroed tensor for output.
func CreateEmptyTensor[T ort.TensorData](shape []int64) (*ort.Tensor[T], error) {
	return ort.NewEmptyTensor[T](ort.NewShape(shape...))
}
