package commands

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/nvr-ai/edgebench/benchmark"
	"github.com/nvr-ai/edgebench/device"
	"github.com/nvr-ai/edgebench/inference"
	"github.com/nvr-ai/edgebench/inference/providers"
	"github.com/nvr-ai/edgebench/report"
	"github.com/nvr-ai/edgebench/test"
	"github.com/nvr-ai/edgebench/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

type harness struct {
	engine     *test.MockEngine
	stabilizer *test.MockStabilizer
	engineErr  error
	factoryRan bool
	modelDir   string
	outputDir  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		engine: test.NewMockEngine(inference.Signature{
			Name:        "input",
			ElementType: inference.ElementFloat32,
			Shape:       []int64{-1, 3, 224, 224},
		}),
		stabilizer: &test.MockStabilizer{Stats: []byte("volt=4000 current=-500\n")},
		modelDir:   t.TempDir(),
		outputDir:  filepath.Join(t.TempDir(), "measurements"),
	}
	require.NoError(t, os.WriteFile(filepath.Join(h.modelDir, "mobilenet.onnx"), []byte("onnx"), 0o644))
	return h
}

func (h *harness) deps() Dependencies {
	return Dependencies{
		Engine: func(providers.Options) (inference.Engine, error) {
			h.factoryRan = true
			if h.engineErr != nil {
				return nil, h.engineErr
			}
			return h.engine, nil
		},
		Stabilizer: func(benchmark.Config) device.Stabilizer {
			return h.stabilizer
		},
		Now: func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) },
	}
}

func (h *harness) run(ctx context.Context, args ...string) (int, string, error) {
	var out bytes.Buffer
	cmd := NewRootCommand(h.deps())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{
		"--model-dir", h.modelDir,
		"--output-dir", h.outputDir,
		"--log-level", "error",
	}, args...))
	err := cmd.ExecuteContext(ctx)
	return ExitCode(err), out.String(), err
}

func outputFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"usage", &benchmark.UsageError{Msg: "bad"}, 1},
		{"model not found", util.ErrModelNotFound, 1},
		{"abort", &benchmark.AbortError{Phase: benchmark.PhaseMeasurement, Err: test.ErrMockRun}, 2},
		{"engine", &inference.ExecutionError{Op: "init", Err: errors.New("no library")}, 2},
		{"interrupted", &benchmark.AbortError{Phase: benchmark.PhaseWarmup, Err: context.Canceled}, 130},
		{"other", errors.New("unknown flag: --bogus"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestInvalidArguments(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"mobilenet.onnx"},
		{"mobilenet.onnx", "1", "1"},
		{"mobilenet.onnx", "1", "1", "1", "1"},
		{"mobilenet.onnx", "abc"},
		{"mobilenet.onnx", "0"},
		{"mobilenet.onnx", "-5"},
		{"mobilenet.onnx", "-1", "0", "1"},
		{"mobilenet.onnx", "0", "0", "0"},
		{"--lifetime", "forever", "mobilenet.onnx", "1"},
	} {
		h := newHarness(t)
		code, _, err := h.run(context.Background(), args...)
		assert.Equal(t, 1, code, "args %q: %v", args, err)
		assert.False(t, h.factoryRan, "args %q", args)
		assert.Empty(t, outputFiles(t, h.outputDir))
	}
}

func TestAbsentModel(t *testing.T) {
	h := newHarness(t)

	code, _, err := h.run(context.Background(), "--no-stabilize", "absent.onnx", "1")
	assert.Equal(t, 1, code)
	assert.ErrorIs(t, err, util.ErrModelNotFound)
	assert.False(t, h.factoryRan)
	assert.Empty(t, outputFiles(t, h.outputDir))
}

func TestLegacyRun(t *testing.T) {
	h := newHarness(t)

	code, out, err := h.run(context.Background(), "--no-stabilize", "mobilenet.onnx", "1")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "=== Benchmark Results ===")
	assert.Contains(t, out, "mobilenet.onnx")

	files := outputFiles(t, h.outputDir)
	require.Len(t, files, 1)
	assert.True(t, strings.HasPrefix(files[0], "mobilenet.onnx_"))
	assert.True(t, strings.HasSuffix(files[0], util.PerformanceSuffix))

	f, err := os.Open(filepath.Join(h.outputDir, files[0]))
	require.NoError(t, err)
	defer f.Close()
	row, err := report.ReadPerformanceCSV(f)
	require.NoError(t, err)
	assert.Equal(t, "mobilenet.onnx", row.Model)
	assert.Greater(t, row.Iterations, uint64(0))
	assert.GreaterOrEqual(t, row.TotalTimeSec, 1.0)
	assert.Greater(t, row.USPerInference, 0.0)

	assert.Equal(t, int(row.Iterations), h.engine.Runs())
	assert.Equal(t, 1, h.engine.Opens())
	assert.Equal(t, 1, h.engine.Closes())
	assert.Equal(t, [][]int64{{1, 3, 224, 224}}, h.engine.LastShapes())
	assert.Zero(t, h.stabilizer.Resets())
}

// summaryValue returns the parsed value printed after label in the console summary.
func summaryValue(t *testing.T, out, label string) float64 {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, label+":"); ok {
			v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
			require.NoError(t, err, line)
			return v
		}
	}
	require.Failf(t, "missing summary line", "%s in %q", label, out)
	return 0
}

func TestFourPhaseRunRecordsEveryField(t *testing.T) {
	h := newHarness(t)

	code, out, err := h.run(context.Background(),
		"--stabilization-delay", "10ms",
		"mobilenet.onnx", "1", "1", "1",
	)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	assert.Equal(t, 1, h.stabilizer.Resets())

	files := outputFiles(t, h.outputDir)
	require.Len(t, files, 1)
	f, err := os.Open(filepath.Join(h.outputDir, files[0]))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, report.Header, rows[0])
	require.Len(t, rows[1], 8)
	for i, field := range rows[1] {
		assert.NotEmpty(t, field, rows[0][i])
	}

	parse := func(i int) float64 {
		v, err := strconv.ParseFloat(rows[1][i], 64)
		require.NoError(t, err, rows[0][i])
		return v
	}
	iterations, elapsedMS := parse(2), parse(3)
	require.Greater(t, iterations, 0.0)
	assert.GreaterOrEqual(t, elapsedMS, 1000.0)
	assert.InEpsilon(t, elapsedMS*1000/iterations, parse(4), 1e-4)
	assert.InDelta(t, elapsedMS/1000, parse(5), 0.001)
	assert.Greater(t, parse(6), 0.0)
	assert.GreaterOrEqual(t, parse(7), 1000.0)
	assert.Equal(t, int(iterations+parse(6)), h.engine.Runs())

	assert.GreaterOrEqual(t, summaryValue(t, out, "Silence (ms)"), 1000.0)
	assert.InEpsilon(t, iterations*1000/elapsedMS, summaryValue(t, out, "Throughput (inf/s)"), 1e-4)
}

func TestFullRunWithBatteryStats(t *testing.T) {
	h := newHarness(t)
	prom := filepath.Join(t.TempDir(), "edgebench.prom")

	code, _, err := h.run(context.Background(),
		"--stabilization-delay", "10ms",
		"--capture-battery-stats",
		"--lifetime", "phase",
		"--metrics-textfile", prom,
		"mobilenet.onnx", "0", "0", "1",
	)
	require.NoError(t, err)
	assert.Equal(t, 0, code)

	assert.Equal(t, 1, h.stabilizer.Resets())
	assert.Equal(t, 1, h.stabilizer.Captures())
	assert.Equal(t, 1, h.engine.Opens())

	files := outputFiles(t, h.outputDir)
	require.Len(t, files, 2)
	assert.True(t, strings.HasSuffix(files[0], util.BatteryStatsSuffix))
	assert.True(t, strings.HasSuffix(files[1], util.PerformanceSuffix))

	metrics, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `edgebench_iterations{model="mobilenet.onnx",phase="measurement"}`)
}

func TestEngineFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.engine.FailAfter = 2

	code, _, err := h.run(context.Background(), "--no-stabilize", "mobilenet.onnx", "1")
	assert.Equal(t, 2, code)
	assert.ErrorIs(t, err, test.ErrMockRun)
	assert.Empty(t, outputFiles(t, h.outputDir))
	assert.Equal(t, h.engine.Opens(), h.engine.Closes())
}

func TestEngineInitFailure(t *testing.T) {
	h := newHarness(t)
	h.engineErr = errors.New("onnxruntime library not found")

	code, _, err := h.run(context.Background(), "--no-stabilize", "mobilenet.onnx", "1")
	assert.Equal(t, 2, code)
	assert.ErrorContains(t, err, "onnxruntime library not found")
	assert.Empty(t, outputFiles(t, h.outputDir))
}

func TestInterruptedRun(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	code, _, err := h.run(ctx, "--no-stabilize", "mobilenet.onnx", "60")
	assert.Equal(t, 130, code)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Empty(t, outputFiles(t, h.outputDir))
}

func TestConfigFileAndEnvironment(t *testing.T) {
	h := newHarness(t)
	envOut := filepath.Join(t.TempDir(), "from-env")
	t.Setenv("EDGEBENCH_PRECISION", "1")

	cfgPath := filepath.Join(t.TempDir(), "edgebench.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("stabilize: false\nlifetime: call\noutput_dir: "+envOut+"\n"), 0o644))

	var out bytes.Buffer
	cmd := NewRootCommand(h.deps())
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "--model-dir", h.modelDir, "--log-level", "error", "mobilenet.onnx", "1"})
	require.NoError(t, cmd.Execute())

	files := outputFiles(t, envOut)
	require.Len(t, files, 1)
	assert.Zero(t, h.stabilizer.Resets())
	assert.Equal(t, h.engine.Runs(), h.engine.Opens())

	data, err := os.ReadFile(filepath.Join(envOut, files[0]))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	fields := strings.Split(lines[1], ",")
	assert.Regexp(t, `^\d+\.\d$`, fields[3])
}

func TestReportCommand(t *testing.T) {
	h := newHarness(t)
	measurements := t.TempDir()
	reports := filepath.Join(t.TempDir(), "reports")

	perf := strings.Join(report.Header, ",") + "\nzi_t/a.onnx,20240101_100000,1000,10000.000,1800.000,10.000,0,0.000\n"
	require.NoError(t, os.WriteFile(filepath.Join(measurements, "zi_t_a.onnx_20240101_100000_performance.csv"), []byte(perf), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(measurements, "zi_t_a.onnx_20240101_100000_batterystats.txt"), []byte("volt=4000 current=-500\n"), 0o644))

	var out bytes.Buffer
	cmd := NewRootCommand(h.deps())
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--log-level", "error", "report", "--measurements", measurements, "--reports", reports})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Energy (Wh)")
	assert.Contains(t, out.String(), "measurements_data_20240309_140507.csv")
	_, err := os.Stat(filepath.Join(reports, "measurements_data_20240309_140507.csv"))
	assert.NoError(t, err)
}

func TestReportCommandEmpty(t *testing.T) {
	h := newHarness(t)

	cmd := NewRootCommand(h.deps())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "error", "report", "--measurements", t.TempDir(), "--reports", t.TempDir()})
	err := cmd.Execute()
	assert.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
}
