// Package inference - Inference engine contract.
package inference

import (
	"fmt"
	"strings"
)

// Engine loads models into executable sessions.
type Engine interface {
	// Open loads the model at modelPath and returns a session ready to run.
	Open(modelPath string) (Session, error)
}

// Session is one loaded model.
type Session interface {
	// Inputs returns the declared input signatures in model order.
	Inputs() []Signature
	// Outputs returns the declared output names in model order.
	Outputs() []string
	// Run executes one synchronous inference pass. Output tensors are released
	// before Run returns; their values are never handed back.
	Run(inputs []Tensor, outputNames []string) error
	// Close releases the session.
	Close() error
}

// Lifetime controls how long an execution session lives.
type Lifetime string

const (
	// LifetimeCall opens and closes a session around every inference call.
	LifetimeCall Lifetime = "call"
	// LifetimePhase keeps one session per timed phase.
	LifetimePhase Lifetime = "phase"
	// LifetimeRun keeps one session for the whole benchmark run.
	LifetimeRun Lifetime = "run"
)

// ParseLifetime converts a configuration string into a Lifetime.
//
// Arguments:
//   - s: One of "call", "phase" or "run" (case-insensitive).
//
// Returns:
//   - Lifetime: The parsed lifetime.
//   - error: An error if s is not a known lifetime.
func ParseLifetime(s string) (Lifetime, error) {
	switch l := Lifetime(strings.ToLower(strings.TrimSpace(s))); l {
	case LifetimeCall, LifetimePhase, LifetimeRun:
		return l, nil
	default:
		return "", fmt.Errorf("unknown session lifetime %q (want call, phase or run)", s)
	}
}

// ExecutionError is a failure reported by the engine while loading or running a model.
type ExecutionError struct {
	Op  string
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("inference %s failed: %v", e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
