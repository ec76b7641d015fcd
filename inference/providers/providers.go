// Package providers - ONNX Runtime execution providers and session options.
package providers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents an ONNX Runtime execution provider.
type ProviderBackend string

const (
	// CPUProviderBackend uses the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
	// CUDAProviderBackend uses NVIDIA CUDA for GPU acceleration.
	CUDAProviderBackend ProviderBackend = "cuda"
	// CoreMLProviderBackend uses Apple CoreML for macOS/iOS acceleration.
	CoreMLProviderBackend ProviderBackend = "coreml"
	// OpenVINOProviderBackend uses Intel OpenVINO.
	OpenVINOProviderBackend ProviderBackend = "openvino"
)

// Options configures how ONNX Runtime sessions are created.
type Options struct {
	// LibraryPath points at the onnxruntime shared library. Empty means SharedLibraryPath("").
	LibraryPath string `json:"library_path" yaml:"library_path" mapstructure:"library_path"`

	// IntraOpNumThreads sets threads for parallelizing a single operator.
	IntraOpNumThreads int `json:"intra_op_threads" yaml:"intra_op_threads" mapstructure:"intra_op_threads"`

	// InterOpNumThreads sets threads for running independent operators in parallel.
	InterOpNumThreads int `json:"inter_op_threads" yaml:"inter_op_threads" mapstructure:"inter_op_threads"`

	// GraphOptimization is one of disable, basic, extended or all.
	GraphOptimization string `json:"graph_optimization" yaml:"graph_optimization" mapstructure:"graph_optimization"`

	// ExecutionMode is sequential or parallel.
	ExecutionMode string `json:"execution_mode" yaml:"execution_mode" mapstructure:"execution_mode"`

	// Backend selects the execution provider.
	Backend ProviderBackend `json:"backend" yaml:"backend" mapstructure:"backend"`

	// BackendOptions are passed verbatim to providers that accept key/value options
	// (CUDA, OpenVINO). CoreML reads "flags".
	BackendOptions map[string]string `json:"backend_options" yaml:"backend_options" mapstructure:"backend_options"`
}

// DefaultOptions returns single-threaded CPU options, matching how edge measurements
// are normally taken.
func DefaultOptions() Options {
	return Options{
		IntraOpNumThreads: 1,
		InterOpNumThreads: 1,
		GraphOptimization: "extended",
		ExecutionMode:     "sequential",
		Backend:           CPUProviderBackend,
	}
}

// Validate checks the option values without touching the runtime.
func (o Options) Validate() error {
	if o.IntraOpNumThreads < 0 {
		return fmt.Errorf("intra_op_threads must be >= 0, got %d", o.IntraOpNumThreads)
	}
	if o.InterOpNumThreads < 0 {
		return fmt.Errorf("inter_op_threads must be >= 0, got %d", o.InterOpNumThreads)
	}
	if _, err := ParseGraphOptimizationLevel(o.GraphOptimization); err != nil {
		return err
	}
	if _, err := ParseExecutionMode(o.ExecutionMode); err != nil {
		return err
	}
	switch o.Backend {
	case "", CPUProviderBackend, CUDAProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend:
		return nil
	default:
		return fmt.Errorf("unsupported execution provider %q", o.Backend)
	}
}

// ParseGraphOptimizationLevel maps a name to an ONNX Runtime optimization level.
// The empty string selects the extended level.
func ParseGraphOptimizationLevel(s string) (ort.GraphOptimizationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disable", "none", "off":
		return ort.GraphOptimizationLevelDisableAll, nil
	case "basic":
		return ort.GraphOptimizationLevelEnableBasic, nil
	case "", "extended":
		return ort.GraphOptimizationLevelEnableExtended, nil
	case "all":
		return ort.GraphOptimizationLevelEnableAll, nil
	default:
		return 0, fmt.Errorf("unknown graph optimization level %q", s)
	}
}

// ParseExecutionMode maps a name to an ONNX Runtime execution mode.
// The empty string selects sequential execution.
func ParseExecutionMode(s string) (ort.ExecutionMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sequential":
		return ort.ExecutionModeSequential, nil
	case "parallel":
		return ort.ExecutionModeParallel, nil
	default:
		return 0, fmt.Errorf("unknown execution mode %q", s)
	}
}

// NewSessionOptions builds ONNX Runtime session options from o.
//
// The caller owns the returned options and must Destroy them once the session
// has been created.
//
// Arguments:
//   - o: The options to apply.
//
// Returns:
//   - *ort.SessionOptions: Configured session options.
//   - error: Configuration error if any.
func NewSessionOptions(o Options) (*ort.SessionOptions, error) {
	level, err := ParseGraphOptimizationLevel(o.GraphOptimization)
	if err != nil {
		return nil, err
	}
	mode, err := ParseExecutionMode(o.ExecutionMode)
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating ORT session options")
	}

	apply := []struct {
		name string
		fn   func() error
	}{
		{"graph optimization level", func() error { return options.SetGraphOptimizationLevel(level) }},
		{"execution mode", func() error { return options.SetExecutionMode(mode) }},
		{"intra-op threads", func() error { return options.SetIntraOpNumThreads(o.IntraOpNumThreads) }},
		{"inter-op threads", func() error { return options.SetInterOpNumThreads(o.InterOpNumThreads) }},
		{"execution provider", func() error { return appendExecutionProvider(options, o) }},
	}
	for _, step := range apply {
		if err := step.fn(); err != nil {
			options.Destroy()
			return nil, errors.Wrapf(err, "error setting %s", step.name)
		}
	}

	return options, nil
}

// appendExecutionProvider enables the configured backend on options.
func appendExecutionProvider(options *ort.SessionOptions, o Options) error {
	switch o.Backend {
	case "", CPUProviderBackend:
		return nil
	case CoreMLProviderBackend:
		var flags uint64
		if raw, ok := o.BackendOptions["flags"]; ok {
			parsed, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return errors.Wrapf(err, "invalid CoreML flags %q", raw)
			}
			flags = parsed
		}
		return options.AppendExecutionProviderCoreML(uint32(flags))
	case OpenVINOProviderBackend:
		return options.AppendExecutionProviderOpenVINO(o.BackendOptions)
	case CUDAProviderBackend:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return errors.Wrap(err, "error creating CUDA provider options")
		}
		defer cuda.Destroy()
		if len(o.BackendOptions) > 0 {
			if err := cuda.Update(o.BackendOptions); err != nil {
				return errors.Wrap(err, "error updating CUDA provider options")
			}
		}
		return options.AppendExecutionProviderCUDA(cuda)
	default:
		return fmt.Errorf("unsupported execution provider %q", o.Backend)
	}
}
