package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvr-ai/edgebench/benchmark"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "edgebench"

// recordGauges are the gauges exported for one record, all labelled by model.
type recordGauges struct {
	iterations *prometheus.GaugeVec
	elapsed    *prometheus.GaugeVec
	latency    *prometheus.GaugeVec
	throughput *prometheus.GaugeVec
	quantiles  *prometheus.GaugeVec
	timestamp  *prometheus.GaugeVec
}

func newRecordGauges(reg prometheus.Registerer) *recordGauges {
	g := &recordGauges{
		iterations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iterations",
			Help:      "Completed inference iterations per phase",
		}, []string{"model", "phase"}),
		elapsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "elapsed_seconds",
			Help:      "Elapsed wall time per phase",
		}, []string{"model", "phase"}),
		latency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_microseconds",
			Help:      "Mean wall time per inference during measurement",
		}, []string{"model"}),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "throughput_inferences_per_second",
			Help:      "Inferences per second during measurement",
		}, []string{"model"}),
		quantiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_quantile_microseconds",
			Help:      "Sampled per-iteration latency quantiles during measurement",
		}, []string{"model", "quantile"}),
		timestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_timestamp_seconds",
			Help:      "Unix time the run started",
		}, []string{"model"}),
	}
	reg.MustRegister(g.iterations, g.elapsed, g.latency, g.throughput, g.quantiles, g.timestamp)
	return g
}

func (g *recordGauges) set(rec *benchmark.Record) {
	for _, p := range []benchmark.PhaseResult{rec.Warmup, rec.Measurement} {
		g.iterations.WithLabelValues(rec.Model, p.Phase.String()).Set(float64(p.Iterations))
		g.elapsed.WithLabelValues(rec.Model, p.Phase.String()).Set(p.Elapsed.Seconds())
	}
	// Undefined rates are left out rather than exported as zero.
	if rec.Metrics.LatencyMicros.Valid {
		g.latency.WithLabelValues(rec.Model).Set(rec.Metrics.LatencyMicros.Value)
	}
	if rec.Metrics.Throughput.Valid {
		g.throughput.WithLabelValues(rec.Model).Set(rec.Metrics.Throughput.Value)
	}
	if rec.Latency.Samples > 0 {
		g.quantiles.WithLabelValues(rec.Model, "0.5").Set(rec.Latency.P50US)
		g.quantiles.WithLabelValues(rec.Model, "0.9").Set(rec.Latency.P90US)
		g.quantiles.WithLabelValues(rec.Model, "0.99").Set(rec.Latency.P99US)
	}
	g.timestamp.WithLabelValues(rec.Model).Set(float64(rec.Timestamp.Unix()))
}

// ExportMetrics writes rec as a Prometheus text exposition to MetricsTextfile.
// It does nothing when MetricsTextfile is empty.
func (r *Reporter) ExportMetrics(rec *benchmark.Record) error {
	if r.MetricsTextfile == "" {
		return nil
	}
	if dir := filepath.Dir(r.MetricsTextfile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create metrics directory: %w", err)
		}
	}

	reg := prometheus.NewRegistry()
	newRecordGauges(reg).set(rec)
	if err := prometheus.WriteToTextfile(r.MetricsTextfile, reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
