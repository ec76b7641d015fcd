// Package profiler - Per-iteration latency tracking and runtime memory snapshots.
package profiler

import (
	"math/rand/v2"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultMaxSamples bounds the number of latency samples kept in memory.
const DefaultMaxSamples = 10000

// LatencyTracker records the duration of every iteration of a timed phase.
//
// Count, total, min and max are exact. Percentiles and standard deviation are
// computed over a uniform reservoir of at most maxSamples durations, so memory
// stays bounded no matter how long the phase runs.
type LatencyTracker struct {
	maxSamples int
	rng        *rand.Rand

	samples []float64
	count   uint64
	total   time.Duration
	min     time.Duration
	max     time.Duration
}

// NewLatencyTracker creates a tracker keeping at most maxSamples samples.
// A maxSamples of zero or less disables sampling; exact counters are still kept.
func NewLatencyTracker(maxSamples int) *LatencyTracker {
	if maxSamples < 0 {
		maxSamples = 0
	}
	return &LatencyTracker{
		maxSamples: maxSamples,
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		samples:    make([]float64, 0, min(maxSamples, 1024)),
	}
}

// Observe records one iteration duration.
func (lt *LatencyTracker) Observe(d time.Duration) {
	lt.count++
	lt.total += d
	if lt.count == 1 || d < lt.min {
		lt.min = d
	}
	if d > lt.max {
		lt.max = d
	}

	if lt.maxSamples == 0 {
		return
	}
	us := float64(d) / float64(time.Microsecond)
	if len(lt.samples) < lt.maxSamples {
		lt.samples = append(lt.samples, us)
		return
	}
	// Algorithm R: keep each new sample with probability maxSamples/count.
	if j := lt.rng.Uint64N(lt.count); j < uint64(lt.maxSamples) {
		lt.samples[j] = us
	}
}

// Reset clears all recorded data.
func (lt *LatencyTracker) Reset() {
	lt.samples = lt.samples[:0]
	lt.count = 0
	lt.total = 0
	lt.min = 0
	lt.max = 0
}

// Count returns the number of observed iterations.
func (lt *LatencyTracker) Count() uint64 {
	return lt.count
}

// Summary is the latency distribution of one phase, in microseconds.
type Summary struct {
	Count   uint64  `json:"count"`
	Samples int     `json:"samples"`
	MeanUS  float64 `json:"mean_us"`
	StdUS   float64 `json:"std_us"`
	MinUS   float64 `json:"min_us"`
	MaxUS   float64 `json:"max_us"`
	P50US   float64 `json:"p50_us"`
	P90US   float64 `json:"p90_us"`
	P99US   float64 `json:"p99_us"`
}

// Valid reports whether the summary holds any observation.
func (s Summary) Valid() bool {
	return s.Count > 0
}

// Summarize computes the latency summary. It returns the zero Summary when nothing
// has been observed.
func (lt *LatencyTracker) Summarize() Summary {
	if lt.count == 0 {
		return Summary{}
	}

	s := Summary{
		Count:   lt.count,
		Samples: len(lt.samples),
		MeanUS:  float64(lt.total) / float64(lt.count) / float64(time.Microsecond),
		MinUS:   float64(lt.min) / float64(time.Microsecond),
		MaxUS:   float64(lt.max) / float64(time.Microsecond),
	}
	if len(lt.samples) == 0 {
		return s
	}

	sorted := append([]float64(nil), lt.samples...)
	sort.Float64s(sorted)
	if len(sorted) > 1 {
		_, s.StdUS = stat.MeanStdDev(sorted, nil)
	}
	s.P50US = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	s.P90US = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	s.P99US = stat.Quantile(0.99, stat.Empirical, sorted, nil)
	return s
}
