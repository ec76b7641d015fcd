// Package report - Console summary, record persistence and metric export.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/nvr-ai/edgebench/benchmark"
	"github.com/nvr-ai/edgebench/profiler"
	"github.com/nvr-ai/edgebench/util"
)

// TimestampLayout is used in record file names and the timestamp column.
const TimestampLayout = "20060102_150405"

// Header is the column set of a persisted benchmark record.
var Header = []string{
	"model",
	"timestamp",
	"measurement_iterations",
	"measurement_elapsed_ms",
	"us_per_inference",
	"total_time_sec",
	"warmup_iterations",
	"warmup_elapsed_ms",
}

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.Bold)
	valueColor   = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
)

// Reporter presents and persists benchmark records.
type Reporter struct {
	// OutputDir receives record and battery statistics files.
	OutputDir string
	// Precision is the number of decimals for floating point fields.
	Precision int
	// MetricsTextfile, when set, receives a Prometheus text exposition of each record.
	MetricsTextfile string
}

// NewReporter creates a reporter writing into outputDir.
func NewReporter(outputDir string, precision int) *Reporter {
	return &Reporter{OutputDir: outputDir, Precision: precision}
}

// BaseName returns <sanitized-model>_<YYYYMMDD_HHMMSS>, shared by every file of a run.
func BaseName(rec *benchmark.Record) string {
	return util.SanitizeName(rec.Model) + "_" + rec.Timestamp.Format(TimestampLayout)
}

func (r *Reporter) float(v float64) string {
	return strconv.FormatFloat(v, 'f', r.Precision, 64)
}

// Summarize writes a human readable summary of rec to w.
func (r *Reporter) Summarize(w io.Writer, rec *benchmark.Record) {
	line := func(label, value string) {
		labelColor.Fprintf(w, "%-22s", label+":")
		valueColor.Fprintln(w, value)
	}

	headingColor.Fprintln(w, "=== Benchmark Results ===")
	line("Model", rec.Model)
	line("Session lifetime", string(rec.Lifetime))
	if rec.Warmup.Iterations > 0 || rec.Warmup.Elapsed > 0 {
		line("Warmup", fmt.Sprintf("%d iterations in %s ms", rec.Warmup.Iterations, r.float(rec.Warmup.ElapsedMillis())))
	}
	if rec.Silence.Elapsed > 0 {
		line("Silence (ms)", r.float(benchmark.Millis(rec.Silence.Elapsed)))
	}
	line("Iterations", strconv.FormatUint(rec.Measurement.Iterations, 10))
	line("Elapsed (ms)", r.float(rec.Measurement.ElapsedMillis()))
	line("Latency (us/inf)", rec.Metrics.LatencyMicros.Format(r.Precision))
	line("Throughput (inf/s)", rec.Metrics.Throughput.Format(r.Precision))
	line("Total time (s)", r.float(rec.Metrics.TotalSeconds))

	if rec.Latency.Samples > 0 {
		line("Latency p50/p90/p99", fmt.Sprintf("%s / %s / %s us",
			r.float(rec.Latency.P50US), r.float(rec.Latency.P90US), r.float(rec.Latency.P99US)))
		line("Latency min/max", fmt.Sprintf("%s / %s us", r.float(rec.Latency.MinUS), r.float(rec.Latency.MaxUS)))
	}
	line("Heap allocated", profiler.FormatBytes(rec.Memory.TotalAllocBytes))

	if !rec.Metrics.LatencyMicros.Valid {
		warnColor.Fprintln(w, "No inference completed during measurement; rates are undefined.")
	}
}

// Row renders rec as one CSV data row in Header order.
func (r *Reporter) Row(rec *benchmark.Record) []string {
	return []string{
		rec.Model,
		rec.Timestamp.Format(TimestampLayout),
		strconv.FormatUint(rec.Measurement.Iterations, 10),
		r.float(rec.Measurement.ElapsedMillis()),
		rec.Metrics.LatencyMicros.Format(r.Precision),
		r.float(rec.Metrics.TotalSeconds),
		strconv.FormatUint(rec.Warmup.Iterations, 10),
		r.float(rec.Warmup.ElapsedMillis()),
	}
}

// Persist writes rec to <OutputDir>/<base>_performance.csv.
//
// Arguments:
//   - rec: The completed record.
//
// Returns:
//   - string: The file path.
//   - error: Any failure creating the directory or writing the file. A partially
//     written file is removed.
func (r *Reporter) Persist(rec *benchmark.Record) (path string, err error) {
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path = filepath.Join(r.OutputDir, BaseName(rec)+util.PerformanceSuffix)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create record file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close record file: %w", closeErr)
		}
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()

	w := csv.NewWriter(f)
	if err := w.WriteAll([][]string{Header, r.Row(rec)}); err != nil {
		return path, fmt.Errorf("failed to write record file: %w", err)
	}
	return path, nil
}

// AttachBatteryStats writes captured battery statistics next to the record file.
func (r *Reporter) AttachBatteryStats(rec *benchmark.Record, data []byte) (string, error) {
	if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(r.OutputDir, BaseName(rec)+util.BatteryStatsSuffix)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write battery stats: %w", err)
	}
	return path, nil
}
