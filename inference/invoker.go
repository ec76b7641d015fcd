// Package inference - Single-pass inference invoker.
package inference

import (
	"context"
	"errors"

	"github.com/nvr-ai/edgebench/logger"
)

// Invoker performs exactly one inference pass per call against a model and discards
// the results.
//
// The session is opened lazily and kept according to the configured Lifetime.
// An Invoker is owned by a single benchmark run and is not safe for concurrent use.
type Invoker struct {
	engine    Engine
	modelPath string
	lifetime  Lifetime
	synth     *Synthesizer

	session     Session
	opened      int
	warnedEmpty bool
}

// NewInvoker creates an invoker for the model at modelPath.
//
// Arguments:
//   - engine: The engine used to open sessions.
//   - modelPath: The resolved model file path.
//   - lifetime: How long a session is kept between calls.
//   - synth: The tensor synthesizer; a clock-seeded one is used when nil.
//
// Returns:
//   - *Invoker: The invoker.
func NewInvoker(engine Engine, modelPath string, lifetime Lifetime, synth *Synthesizer) *Invoker {
	if synth == nil {
		synth = NewSynthesizer()
	}
	if lifetime == "" {
		lifetime = LifetimeRun
	}
	return &Invoker{
		engine:    engine,
		modelPath: modelPath,
		lifetime:  lifetime,
		synth:     synth,
	}
}

// Lifetime returns the session lifetime policy.
func (iv *Invoker) Lifetime() Lifetime {
	return iv.lifetime
}

// SessionsOpened returns how many sessions the invoker has opened so far.
func (iv *Invoker) SessionsOpened() int {
	return iv.opened
}

// Invoke runs one inference pass.
//
// A model without inputs is not run; the call logs a warning (once) and succeeds.
// Engine failures are returned as *ExecutionError.
func (iv *Invoker) Invoke(ctx context.Context) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	session, err := iv.acquire()
	if err != nil {
		return err
	}
	if iv.lifetime == LifetimeCall {
		defer func() {
			if closeErr := iv.release(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
	}

	inputs := session.Inputs()
	if len(inputs) == 0 {
		if !iv.warnedEmpty {
			logger.Log.Warn("model declares no inputs, skipping inference", "model", iv.modelPath)
			iv.warnedEmpty = true
		}
		return nil
	}

	tensors, err := iv.synth.SynthesizeAll(inputs)
	if err != nil {
		return &ExecutionError{Op: "synthesize", Err: err}
	}
	if err := session.Run(tensors, session.Outputs()); err != nil {
		return &ExecutionError{Op: "run", Err: err}
	}
	return nil
}

// EndPhase closes the session when the lifetime is per phase.
func (iv *Invoker) EndPhase() error {
	if iv.lifetime != LifetimePhase {
		return nil
	}
	return iv.release()
}

// Close releases any open session.
func (iv *Invoker) Close() error {
	return iv.release()
}

func (iv *Invoker) acquire() (Session, error) {
	if iv.session != nil {
		return iv.session, nil
	}
	if iv.engine == nil {
		return nil, &ExecutionError{Op: "open", Err: errors.New("no inference engine configured")}
	}

	session, err := iv.engine.Open(iv.modelPath)
	if err != nil {
		return nil, &ExecutionError{Op: "open", Err: err}
	}
	iv.session = session
	iv.opened++

	if iv.opened == 1 {
		logger.Log.Debug("session opened",
			"model", iv.modelPath,
			"lifetime", string(iv.lifetime),
			"inputs", len(session.Inputs()),
			"outputs", len(session.Outputs()),
		)
	}
	return session, nil
}

func (iv *Invoker) release() error {
	if iv.session == nil {
		return nil
	}
	session := iv.session
	iv.session = nil
	if err := session.Close(); err != nil {
		return &ExecutionError{Op: "close", Err: err}
	}
	return nil
}
