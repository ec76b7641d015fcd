package benchmark

import (
	"time"

	"github.com/nvr-ai/edgebench/inference"
	"github.com/nvr-ai/edgebench/profiler"
)

// PhaseResult is the outcome of a timed inference loop.
type PhaseResult struct {
	Phase      Phase         `json:"phase"`
	Iterations uint64        `json:"iterations"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ElapsedMillis returns the elapsed time in milliseconds.
func (r PhaseResult) ElapsedMillis() float64 {
	return Millis(r.Elapsed)
}

// SilenceResult is the outcome of the silence and stabilization phases.
type SilenceResult struct {
	Elapsed      time.Duration `json:"elapsed"`
	ResetElapsed time.Duration `json:"reset_elapsed"`
	// Stabilized is true when the counter reset succeeded.
	Stabilized bool `json:"stabilized"`
}

// Record is the outcome of one completed benchmark run. It is built once, at the
// end of a successful run, and never changed afterwards.
type Record struct {
	Model       string               `json:"model"`
	Timestamp   time.Time            `json:"timestamp"`
	Lifetime    inference.Lifetime   `json:"lifetime"`
	Warmup      PhaseResult          `json:"warmup"`
	Silence     SilenceResult        `json:"silence"`
	Measurement PhaseResult          `json:"measurement"`
	Metrics     Metrics              `json:"metrics"`
	Latency     profiler.Summary     `json:"latency"`
	Memory      profiler.MemoryDelta `json:"memory"`
}
