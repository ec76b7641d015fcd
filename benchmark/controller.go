package benchmark

import (
	"context"
	"errors"
	"time"

	"github.com/nvr-ai/edgebench/inference"
	"github.com/nvr-ai/edgebench/logger"
	"github.com/nvr-ai/edgebench/profiler"
)

// Invoker performs one inference pass per call.
type Invoker interface {
	Invoke(ctx context.Context) error
	// EndPhase is called after each timed loop completes.
	EndPhase() error
}

// Stabilizer resets device-level accounting counters before measurement.
type Stabilizer interface {
	Reset(ctx context.Context) error
}

// Controller drives a run through Warmup, Silence, StabilizationReset and
// Measurement. A Controller runs once and is not safe for concurrent use.
type Controller struct {
	cfg        Config
	invoker    Invoker
	stabilizer Stabilizer
	latency    *profiler.LatencyTracker
	log        *logger.Logger

	phase Phase

	// now and sleep are replaced in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewController creates a controller for the given run.
//
// Arguments:
//   - cfg: A validated configuration.
//   - invoker: The inference invoker.
//   - stabilizer: Used for the stabilization reset; may be nil when cfg.Stabilize is false.
//
// Returns:
//   - *Controller: The controller, in the idle phase.
func NewController(cfg Config, invoker Invoker, stabilizer Stabilizer) *Controller {
	return &Controller{
		cfg:        cfg,
		invoker:    invoker,
		stabilizer: stabilizer,
		latency:    profiler.NewLatencyTracker(cfg.LatencySamples),
		log:        logger.Log.With("model", cfg.Model),
		phase:      PhaseIdle,
		now:        time.Now,
		sleep:      Sleep,
	}
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.phase
}

// ShouldContinue reports whether a timed loop runs another iteration. It is
// evaluated once per iteration boundary.
func ShouldContinue(ctx context.Context, now, deadline time.Time) bool {
	return ctx.Err() == nil && !now.After(deadline)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes the whole benchmark.
//
// Order of operations:
//  1. Warmup loop (skipped when its duration is zero).
//  2. Silence wait (skipped when its duration is zero).
//  3. Stabilization reset followed by the stabilization delay, unless disabled.
//  4. Measurement loop.
//
// Returns:
//   - *Record: The completed record.
//   - error: An *AbortError if the invoker failed or ctx was cancelled.
func (c *Controller) Run(ctx context.Context) (*Record, error) {
	rec := &Record{
		Model:     c.cfg.Model,
		Timestamp: c.now(),
		Lifetime:  c.cfg.SessionLifetime(),
	}

	c.log.Info("benchmark started",
		"lifetime", string(rec.Lifetime),
		"warmup", c.cfg.Warmup.String(),
		"silence", c.cfg.Silence.String(),
		"measurement", c.cfg.Measurement.String(),
	)

	warmup, err := c.runLoop(ctx, PhaseWarmup, c.cfg.Warmup, nil)
	if err != nil {
		return nil, c.abort(err)
	}
	rec.Warmup = warmup

	silence, err := c.runSilence(ctx)
	if err != nil {
		return nil, c.abort(err)
	}
	rec.Silence = silence

	startMem := profiler.ReadMemory()
	measurement, err := c.runLoop(ctx, PhaseMeasurement, c.cfg.Measurement, c.latency)
	if err != nil {
		return nil, c.abort(err)
	}
	rec.Measurement = measurement
	rec.Memory = profiler.ReadMemory().Since(startMem)

	rec.Metrics = Derive(measurement)
	rec.Latency = c.latency.Summarize()
	c.phase = PhaseDone

	c.log.Info("benchmark finished",
		"iterations", measurement.Iterations,
		"elapsed", measurement.Elapsed.String(),
		"us_per_inference", rec.Metrics.LatencyMicros.Format(c.cfg.Precision),
	)
	return rec, nil
}

// runLoop invokes the model back to back until the deadline fixed at phase
// entry has passed. A nil tracker skips per-iteration latency recording.
func (c *Controller) runLoop(ctx context.Context, phase Phase, d time.Duration, tracker *profiler.LatencyTracker) (PhaseResult, error) {
	c.phase = phase
	result := PhaseResult{Phase: phase}
	if d <= 0 {
		c.log.Debug("phase skipped", "phase", phase.String())
		return result, nil
	}

	c.log.Info("phase started", "phase", phase.String(), "duration", d.String())

	start := c.now()
	deadline := start.Add(d)
	now := start
	for ShouldContinue(ctx, now, deadline) {
		if err := c.invoker.Invoke(ctx); err != nil {
			return result, err
		}
		result.Iterations++

		next := c.now()
		if tracker != nil {
			tracker.Observe(next.Sub(now))
		}
		now = next
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	result.Elapsed = now.Sub(start)

	if err := c.invoker.EndPhase(); err != nil {
		return result, err
	}

	c.log.Info("phase finished",
		"phase", phase.String(),
		"iterations", result.Iterations,
		"elapsed", result.Elapsed.String(),
	)
	return result, nil
}

func (c *Controller) runSilence(ctx context.Context) (SilenceResult, error) {
	var result SilenceResult

	c.phase = PhaseSilence
	if c.cfg.Silence > 0 {
		c.log.Info("phase started", "phase", c.phase.String(), "duration", c.cfg.Silence.String())
		start := c.now()
		if err := c.sleep(ctx, c.cfg.Silence); err != nil {
			return result, err
		}
		result.Elapsed = c.now().Sub(start)
	}

	c.phase = PhaseStabilizationReset
	if !c.cfg.Stabilize {
		c.log.Debug("phase skipped", "phase", c.phase.String())
		return result, nil
	}

	start := c.now()
	if c.stabilizer != nil {
		if err := c.stabilizer.Reset(ctx); err != nil {
			c.log.Warn("stabilization reset failed", "phase", c.phase.String(), "error", err)
		} else {
			result.Stabilized = true
		}
	}
	if err := c.sleep(ctx, c.cfg.StabilizationDelay); err != nil {
		return result, err
	}
	result.ResetElapsed = c.now().Sub(start)
	return result, nil
}

func (c *Controller) abort(err error) error {
	phase := c.phase
	c.phase = PhaseAborted

	var execErr *inference.ExecutionError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.log.Warn("benchmark interrupted", "phase", phase.String())
	case errors.As(err, &execErr):
		c.log.Error("inference failed", "phase", phase.String(), "op", execErr.Op, "error", execErr.Err)
	default:
		c.log.Error("benchmark aborted", "phase", phase.String(), "error", err)
	}
	return &AbortError{Phase: phase, Err: err}
}
