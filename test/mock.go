// Package test - Deterministic stand-ins for the inference engine and device side channel.
package test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nvr-ai/edgebench/inference"
)

// ErrMockRun is the error a MockEngine returns once FailAfter runs have succeeded.
var ErrMockRun = errors.New("mock engine: run failed")

// MockEngine is an inference.Engine whose sessions declare fixed inputs and outputs
// and cost a configurable amount of time per run.
//
// @example
// engine := test.NewMockEngine(inference.Signature{Name: "input", Shape: []int64{-1, 3, 224, 224}})
// invoker := inference.NewInvoker(engine, "model.onnx", inference.LifetimeRun, nil)
type MockEngine struct {
	// InputSigs are declared by every opened session.
	InputSigs []inference.Signature
	// OutputNames are declared by every opened session.
	OutputNames []string
	// RunCost is slept inside every Run.
	RunCost time.Duration
	// FailAfter makes Run fail once this many runs succeeded; negative disables.
	FailAfter int
	// OpenErr is returned from Open when set.
	OpenErr error

	mu       sync.Mutex
	opens    int
	closes   int
	runs     int
	lastPath string
	shapes   [][]int64
	lens     []int
	outputs  []string
}

// NewMockEngine creates an engine declaring the given inputs and a single "output" tensor.
func NewMockEngine(inputs ...inference.Signature) *MockEngine {
	return &MockEngine{
		InputSigs:   inputs,
		OutputNames: []string{"output"},
		FailAfter:   -1,
	}
}

// Open implements inference.Engine.
func (m *MockEngine) Open(modelPath string) (inference.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	m.opens++
	m.lastPath = modelPath
	return &mockSession{engine: m}, nil
}

// Opens returns the number of sessions opened.
func (m *MockEngine) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Closes returns the number of sessions closed.
func (m *MockEngine) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

// Runs returns the number of successful Run calls.
func (m *MockEngine) Runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs
}

// LastPath returns the model path of the most recent Open.
func (m *MockEngine) LastPath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPath
}

// LastShapes returns the tensor shapes passed to the most recent Run.
func (m *MockEngine) LastShapes() [][]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shapes
}

// LastLens returns the tensor lengths passed to the most recent Run.
func (m *MockEngine) LastLens() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lens
}

// LastOutputs returns the output names requested by the most recent Run.
func (m *MockEngine) LastOutputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outputs
}

type mockSession struct {
	engine *MockEngine
	closed bool
}

func (s *mockSession) Inputs() []inference.Signature {
	return s.engine.InputSigs
}

func (s *mockSession) Outputs() []string {
	return s.engine.OutputNames
}

func (s *mockSession) Run(inputs []inference.Tensor, outputNames []string) error {
	if s.closed {
		return errors.New("mock engine: run on closed session")
	}
	if s.engine.RunCost > 0 {
		time.Sleep(s.engine.RunCost)
	}

	m := s.engine
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAfter >= 0 && m.runs >= m.FailAfter {
		return ErrMockRun
	}
	m.runs++
	m.shapes = make([][]int64, len(inputs))
	m.lens = make([]int, len(inputs))
	for i, t := range inputs {
		m.shapes[i] = t.Shape
		m.lens[i] = t.Len()
	}
	m.outputs = outputNames
	return nil
}

func (s *mockSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.engine.mu.Lock()
	s.engine.closes++
	s.engine.mu.Unlock()
	return nil
}

// MockStabilizer records reset and capture requests.
type MockStabilizer struct {
	ResetErr   error
	CaptureErr error
	Stats      []byte

	mu       sync.Mutex
	resets   int
	captures int
}

// Reset implements device.Stabilizer.
func (s *MockStabilizer) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	return s.ResetErr
}

// Capture implements device.Stabilizer.
func (s *MockStabilizer) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures++
	if s.CaptureErr != nil {
		return nil, s.CaptureErr
	}
	return s.Stats, nil
}

// Resets returns the number of Reset calls.
func (s *MockStabilizer) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}

// Captures returns the number of Capture calls.
func (s *MockStabilizer) Captures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.captures
}
