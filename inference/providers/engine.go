// Package providers - ONNX Runtime backed inference engine.
package providers

import (
	"fmt"

	"github.com/nvr-ai/edgebench/inference"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ORTEngine opens ONNX models with ONNX Runtime.
type ORTEngine struct {
	options Options
}

// NewORTEngine validates the options and initializes the ONNX Runtime environment.
//
// Arguments:
//   - options: Session and library configuration.
//
// Returns:
//   - *ORTEngine: The engine.
//   - error: An error if the options are invalid or the runtime cannot be loaded.
func NewORTEngine(options Options) (*ORTEngine, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	if err := InitializeEnvironment(options.LibraryPath); err != nil {
		return nil, err
	}
	return &ORTEngine{options: options}, nil
}

// Open implements inference.Engine.
//
// Order of operations:
//  1. Read the declared inputs and outputs from the model file.
//  2. Build session options (threads, optimization level, execution provider).
//  3. Create a dynamic session bound to the declared names.
func (e *ORTEngine) Open(modelPath string) (inference.Session, error) {
	inputInfo, outputInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading input/output info from %s", modelPath)
	}

	inputs := make([]inference.Signature, len(inputInfo))
	inputNames := make([]string, len(inputInfo))
	for i, info := range inputInfo {
		inputs[i] = inference.Signature{
			Name:        info.Name,
			ElementType: ElementTypeOf(info.DataType),
			Shape:       append([]int64(nil), info.Dimensions...),
		}
		inputNames[i] = info.Name
	}

	outputNames := make([]string, len(outputInfo))
	for i, info := range outputInfo {
		outputNames[i] = info.Name
	}

	options, err := NewSessionOptions(e.options)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, options)
	if err != nil {
		return nil, errors.Wrapf(err, "error creating ORT session for %s", modelPath)
	}

	return &ortSession{
		session: session,
		inputs:  inputs,
		outputs: outputNames,
	}, nil
}

// Close tears down the ONNX Runtime environment.
func (e *ORTEngine) Close() error {
	return DestroyEnvironment()
}

type ortSession struct {
	session *ort.DynamicAdvancedSession
	inputs  []inference.Signature
	outputs []string
}

func (s *ortSession) Inputs() []inference.Signature {
	return s.inputs
}

func (s *ortSession) Outputs() []string {
	return s.outputs
}

// Run converts the synthesized tensors to the declared element types, runs the
// model, and destroys every input and output value before returning.
func (s *ortSession) Run(inputs []inference.Tensor, outputNames []string) error {
	if s.session == nil {
		return errors.New("session is closed")
	}
	if len(inputs) != len(s.inputs) {
		return fmt.Errorf("expected %d inputs, got %d", len(s.inputs), len(inputs))
	}
	if len(outputNames) != len(s.outputs) {
		return fmt.Errorf("expected %d outputs, got %d", len(s.outputs), len(outputNames))
	}

	values := make([]ort.Value, 0, len(inputs))
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()
	for i, t := range inputs {
		v, err := NewValue(t, s.inputs[i].ElementType)
		if err != nil {
			return err
		}
		values = append(values, v)
	}

	// Nil outputs are allocated by ONNX Runtime and handed back for us to destroy.
	outputs := make([]ort.Value, len(outputNames))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := s.session.Run(values, outputs); err != nil {
		return errors.Wrap(err, "error running ORT session")
	}
	return nil
}

func (s *ortSession) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	if err != nil {
		return errors.Wrap(err, "error destroying ORT session")
	}
	return nil
}
