package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/nvr-ai/edgebench/logger"
	"github.com/nvr-ai/edgebench/util"
)

var (
	voltPattern    = regexp.MustCompile(`volt=(\d+)`)
	currentPattern = regexp.MustCompile(`current=(-?\d+)`)
)

// ErrNoSamples is returned when a battery statistics file has no usable samples.
var ErrNoSamples = errors.New("no battery samples")

// BatterySamples are paired voltage and current readings from battery statistics.
type BatterySamples struct {
	VoltageMV []int64
	CurrentMA []int64
}

// Len returns the number of paired samples.
func (s BatterySamples) Len() int {
	return len(s.CurrentMA)
}

// AveragePowerW returns the mean of mV*|mA|/1e6 over all samples.
func (s BatterySamples) AveragePowerW() float64 {
	if s.Len() == 0 {
		return 0
	}
	var sum float64
	for i, c := range s.CurrentMA {
		sum += float64(s.VoltageMV[i]) * math.Abs(float64(c)) / 1e6
	}
	return sum / float64(s.Len())
}

// ParseBatteryStats extracts samples from battery statistics output.
//
// Only lines carrying a current reading are considered. Each current reading is
// paired with the most recent voltage seen on or before its line; readings before
// the first voltage are dropped.
//
// Arguments:
//   - r: The battery statistics text.
//
// Returns:
//   - BatterySamples: The paired samples.
//   - error: ErrNoSamples if nothing could be paired, or a read error.
func ParseBatteryStats(r io.Reader) (BatterySamples, error) {
	var (
		samples BatterySamples
		volt    int64
		haveV   bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "current=") {
			continue
		}
		if m := voltPattern.FindStringSubmatch(line); m != nil {
			if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
				volt, haveV = v, true
			}
		}
		m := currentPattern.FindStringSubmatch(line)
		if m == nil || !haveV {
			continue
		}
		c, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		samples.VoltageMV = append(samples.VoltageMV, volt)
		samples.CurrentMA = append(samples.CurrentMA, c)
	}
	if err := scanner.Err(); err != nil {
		return BatterySamples{}, err
	}
	if samples.Len() == 0 {
		return BatterySamples{}, ErrNoSamples
	}
	return samples, nil
}

// PerformanceRow is the part of a persisted record the measurement report reads.
type PerformanceRow struct {
	Model          string
	Timestamp      string
	Iterations     uint64
	USPerInference float64
	TotalTimeSec   float64
}

// ReadPerformanceCSV reads the first data row of a persisted record.
// Records with an undefined latency are rejected.
func ReadPerformanceCSV(r io.Reader) (PerformanceRow, error) {
	rows, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return PerformanceRow{}, err
	}
	if len(rows) < 2 {
		return PerformanceRow{}, errors.New("record has no data row")
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[strings.TrimSpace(name)] = i
	}
	get := func(name string) (string, error) {
		i, ok := col[name]
		if !ok || i >= len(rows[1]) {
			return "", fmt.Errorf("missing column %q", name)
		}
		return strings.TrimSpace(rows[1][i]), nil
	}

	var row PerformanceRow
	if row.Model, err = get("model"); err != nil {
		return row, err
	}
	if row.Timestamp, err = get("timestamp"); err != nil {
		return row, err
	}
	iterations, err := get("measurement_iterations")
	if err != nil {
		return row, err
	}
	if row.Iterations, err = strconv.ParseUint(iterations, 10, 64); err != nil {
		return row, fmt.Errorf("invalid measurement_iterations %q: %w", iterations, err)
	}
	if row.USPerInference, err = getFloat(get, "us_per_inference"); err != nil {
		return row, err
	}
	if row.TotalTimeSec, err = getFloat(get, "total_time_sec"); err != nil {
		return row, err
	}
	return row, nil
}

func getFloat(get func(string) (string, error), name string) (float64, error) {
	s, err := get(name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

// MeasurementEntry is one record joined with its battery statistics.
type MeasurementEntry struct {
	PerformanceRow
	Samples   int
	AvgPowerW float64
	// EnergyWh is the energy of a single inference.
	EnergyWh float64
}

// EnergyPerInferenceWh converts average power and per-inference latency to watt-hours.
func EnergyPerInferenceWh(avgPowerW, usPerInference float64) float64 {
	return avgPowerW * (usPerInference / 1e6) / 3600.0
}

// ModelSummary aggregates every entry of one model.
type ModelSummary struct {
	Model          string
	Runs           int
	AvgPowerW      float64
	EnergyWh       float64
	Iterations     float64
	USPerInference float64
	TotalTimeSec   float64
}

// MeasurementReport is the joined view of a measurements directory.
type MeasurementReport struct {
	Entries   []MeasurementEntry
	Models    []ModelSummary
	Processed int
	Skipped   int
}

// BuildMeasurementReport joins every record in dir with its battery statistics
// and aggregates the result per model. Files lacking a partner, or whose partner
// holds no samples, are skipped and counted.
//
// Arguments:
//   - dir: The measurements directory.
//
// Returns:
//   - *MeasurementReport: The report, possibly empty.
//   - error: An error if dir cannot be read.
func BuildMeasurementReport(dir string) (*MeasurementReport, error) {
	files, err := util.ListMeasurementFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}

	report := &MeasurementReport{}
	for _, f := range files {
		entry, err := joinMeasurement(f)
		if err != nil {
			logger.Log.Warn("measurement skipped", "file", filepath.Base(f.Performance), "error", err)
			report.Skipped++
			continue
		}
		report.Entries = append(report.Entries, entry)
		report.Processed++
	}
	report.Models = Aggregate(report.Entries)
	return report, nil
}

func joinMeasurement(f util.MeasurementFile) (MeasurementEntry, error) {
	if f.BatteryStats == "" {
		return MeasurementEntry{}, errors.New("no battery stats file")
	}

	perf, err := readFile(f.Performance, ReadPerformanceCSV)
	if err != nil {
		return MeasurementEntry{}, err
	}
	samples, err := readFile(f.BatteryStats, ParseBatteryStats)
	if err != nil {
		return MeasurementEntry{}, err
	}

	power := samples.AveragePowerW()
	return MeasurementEntry{
		PerformanceRow: perf,
		Samples:        samples.Len(),
		AvgPowerW:      power,
		EnergyWh:       EnergyPerInferenceWh(power, perf.USPerInference),
	}, nil
}

func readFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return parse(f)
}

// Aggregate averages entries per model. A run is a distinct timestamp. Results are
// sorted by runs, then energy, both descending.
func Aggregate(entries []MeasurementEntry) []ModelSummary {
	type acc struct {
		ModelSummary
		n          int
		timestamps map[string]struct{}
	}
	byModel := map[string]*acc{}
	var order []string
	for _, e := range entries {
		a, ok := byModel[e.Model]
		if !ok {
			a = &acc{ModelSummary: ModelSummary{Model: e.Model}, timestamps: map[string]struct{}{}}
			byModel[e.Model] = a
			order = append(order, e.Model)
		}
		a.n++
		a.timestamps[e.Timestamp] = struct{}{}
		a.AvgPowerW += e.AvgPowerW
		a.EnergyWh += e.EnergyWh
		a.Iterations += float64(e.Iterations)
		a.USPerInference += e.USPerInference
		a.TotalTimeSec += e.TotalTimeSec
	}

	out := make([]ModelSummary, 0, len(order))
	for _, model := range order {
		a := byModel[model]
		n := float64(a.n)
		s := a.ModelSummary
		s.Runs = len(a.timestamps)
		s.AvgPowerW /= n
		s.EnergyWh /= n
		s.Iterations /= n
		s.USPerInference /= n
		s.TotalTimeSec /= n
		out = append(out, s)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Runs != out[j].Runs {
			return out[i].Runs > out[j].Runs
		}
		return out[i].EnergyWh > out[j].EnergyWh
	})
	return out
}

// DisplayName shortens a model path to its file name without the .onnx extension.
func DisplayName(model string) string {
	if i := strings.LastIndexAny(model, `/\`); i >= 0 {
		model = model[i+1:]
	}
	return strings.TrimSuffix(model, ".onnx")
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Padding(0, 1)
	tableNumberStyle = tableCellStyle.Align(lipgloss.Right)
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Render draws the per-model summary as a table.
func (r *MeasurementReport) Render() string {
	rows := make([][]string, len(r.Models))
	for i, m := range r.Models {
		rows[i] = []string{
			DisplayName(m.Model),
			strconv.Itoa(m.Runs),
			strconv.FormatFloat(m.AvgPowerW, 'f', 3, 64),
			strconv.FormatFloat(m.EnergyWh, 'f', 6, 64),
			strconv.FormatFloat(m.Iterations, 'f', 0, 64),
			strconv.FormatFloat(m.USPerInference/1000, 'f', 2, 64),
			strconv.FormatFloat(m.TotalTimeSec, 'f', 2, 64),
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers("Model", "Runs", "Avg Power (W)", "Energy (Wh)", "Iterations", "Time/Inf (ms)", "Total Time (s)").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case col == 0:
				return tableCellStyle
			default:
				return tableNumberStyle
			}
		})
	return t.String()
}

// DataHeader is the column set of the measurement data file.
var DataHeader = []string{
	"filename", "date_time", "samples", "avg_power", "iterations", "usperinf", "totaltimesec", "energy",
}

// WriteCSV writes every joined entry to <dir>/measurements_data_<ts>.csv.
func (r *MeasurementReport) WriteCSV(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	records := [][]string{DataHeader}
	for _, e := range r.Entries {
		records = append(records, []string{
			e.Model,
			e.Timestamp,
			strconv.Itoa(e.Samples),
			strconv.FormatFloat(e.AvgPowerW, 'f', -1, 64),
			strconv.FormatUint(e.Iterations, 10),
			strconv.FormatFloat(e.USPerInference, 'f', -1, 64),
			strconv.FormatFloat(e.TotalTimeSec, 'f', -1, 64),
			strconv.FormatFloat(e.EnergyWh, 'g', -1, 64),
		})
	}

	path := filepath.Join(dir, "measurements_data_"+now.Format(TimestampLayout)+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create report file: %w", err)
	}
	w := csv.NewWriter(f)
	writeErr := w.WriteAll(records)
	if closeErr := f.Close(); writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write report file: %w", writeErr)
	}
	return path, nil
}
