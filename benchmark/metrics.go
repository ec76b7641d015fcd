package benchmark

import (
	"strconv"
	"time"
)

// Rate is a derived value that may be undefined.
type Rate struct {
	Value float64 `json:"value"`
	Valid bool    `json:"valid"`
}

// Format renders the rate with prec decimals, or "undefined".
func (r Rate) Format(prec int) string {
	if !r.Valid {
		return "undefined"
	}
	return strconv.FormatFloat(r.Value, 'f', prec, 64)
}

// Metrics are the values derived from the measurement phase.
type Metrics struct {
	// LatencyMicros is the mean wall time per inference in microseconds.
	LatencyMicros Rate `json:"latency_us"`
	// Throughput is inferences per second.
	Throughput Rate `json:"throughput"`
	// TotalSeconds is the measurement elapsed time in seconds.
	TotalSeconds float64 `json:"total_sec"`
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Derive computes the metrics of a measurement phase result.
//
// Latency is undefined without iterations. Throughput is also undefined when
// no time elapsed.
func Derive(m PhaseResult) Metrics {
	ms := Millis(m.Elapsed)
	out := Metrics{TotalSeconds: ms / 1000.0}

	if m.Iterations == 0 {
		return out
	}
	iters := float64(m.Iterations)
	out.LatencyMicros = Rate{Value: ms * 1000.0 / iters, Valid: true}
	if ms > 0 {
		out.Throughput = Rate{Value: iters * 1000.0 / ms, Valid: true}
	}
	return out
}
