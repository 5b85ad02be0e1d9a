package backbones

import (
	"os"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ErrNoWeights is returned when opening a backbone built without weights.
var ErrNoWeights = errors.New("backbones: backbone has no weights")

// Backbone is a resolved feature extractor.
type Backbone struct {
	// Name is the registry name.
	Name string `json:"name" yaml:"name"`
	// Variant is the ResNet variant.
	Variant Name `json:"variant" yaml:"variant"`
	// Kind is the registry type, e.g. "resnet" or "resnet-fpn".
	Kind string `json:"kind" yaml:"kind"`
	// NumFeatures is the channel count of the features handed to a head.
	NumFeatures int `json:"num_features" yaml:"num_features"`
	// Pretrained reports whether pretrained weights were loaded.
	Pretrained bool `json:"pretrained" yaml:"pretrained"`
	// TrainableLayers is the number of trainable stages (detection backbones).
	TrainableLayers int `json:"trainable_layers,omitempty" yaml:"trainable_layers,omitempty"`
	// WeightsPath is the local ONNX file, empty for untrained backbones.
	WeightsPath string `json:"weights_path,omitempty" yaml:"weights_path,omitempty"`
}

// SessionOptions configures Open.
type SessionOptions struct {
	// LibraryPath is the onnxruntime shared library; DefaultLibraryPath() when empty.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// IntraOpThreads limits the threads of one operator; runtime default when 0.
	IntraOpThreads int `json:"intra_op_threads" yaml:"intra_op_threads"`
	// Provider is the execution provider; ProviderCPU when empty.
	Provider Provider `json:"provider,omitempty" yaml:"provider,omitempty"`
	// DeviceID selects the CUDA device.
	DeviceID int `json:"device_id,omitempty" yaml:"device_id,omitempty"`
}

// Session runs the backbone's ONNX graph.
type Session struct {
	session *ort.DynamicAdvancedSession
	// Inputs and Outputs are the graph's tensor names.
	Inputs  []string
	Outputs []string
}

// Run executes the graph. inputs and outputs follow Inputs and Outputs; nil
// outputs are allocated by onnxruntime.
func (s *Session) Run(inputs, outputs []ort.Value) error {
	if s.session == nil {
		return errors.New("session is closed")
	}
	return s.session.Run(inputs, outputs)
}

// Close releases the native session.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

// Open creates an onnxruntime session over the backbone's weights.
//
// Arguments:
//   - opts: Runtime library and threading options.
//
// Returns:
//   - *Session: The session; the caller must Close it.
//   - error: ErrNoWeights for untrained backbones, or a runtime error.
func (b *Backbone) Open(opts SessionOptions) (*Session, error) {
	if b.WeightsPath == "" {
		return nil, errors.Wrapf(ErrNoWeights, "%s", b.Name)
	}
	provider, err := ParseProvider(string(opts.Provider))
	if err != nil {
		return nil, err
	}
	if err := initRuntime(opts.LibraryPath); err != nil {
		return nil, err
	}

	inputInfo, outputInfo, err := ort.GetInputOutputInfo(b.WeightsPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph of %s", b.WeightsPath)
	}
	s := &Session{}
	for _, info := range inputInfo {
		s.Inputs = append(s.Inputs, info.Name)
	}
	for _, info := range outputInfo {
		s.Outputs = append(s.Outputs, info.Name)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, errors.Wrap(err, "failed to set intra-op threads")
		}
	}
	if err := appendProvider(options, provider, opts.DeviceID); err != nil {
		return nil, err
	}

	s.session, err = ort.NewDynamicAdvancedSession(b.WeightsPath, s.Inputs, s.Outputs, options)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create session for %s", b.Name)
	}
	return s, nil
}

var runtimeMu sync.Mutex

// initRuntime loads the onnxruntime library once per process.
func initRuntime(libPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libPath == "" {
		var err error
		if libPath, err = DefaultLibraryPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(libPath); err != nil {
		return errors.Wrapf(err, "onnxruntime library not found at %s", libPath)
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "error initializing onnxruntime environment")
	}
	return nil
}

// DefaultLibraryPath returns the bundled onnxruntime library for this platform.
func DefaultLibraryPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if runtime.GOARCH == "amd64" {
			return "./third_party/onnxruntime.dll", nil
		}
	case "darwin":
		return "./third_party/libonnxruntime.dylib", nil
	case "linux":
		if runtime.GOARCH == "arm64" {
			return "./third_party/onnxruntime_arm64.so", nil
		}
		return "./third_party/onnxruntime.so", nil
	}
	return "", errors.Errorf("no onnxruntime library for %s/%s", runtime.GOOS, runtime.GOARCH)
}
