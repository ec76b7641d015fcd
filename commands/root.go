// Package commands - Command line interface of the benchmark harness.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nvr-ai/edgebench/benchmark"
	"github.com/nvr-ai/edgebench/device"
	"github.com/nvr-ai/edgebench/inference"
	"github.com/nvr-ai/edgebench/inference/providers"
	"github.com/nvr-ai/edgebench/logger"
	"github.com/nvr-ai/edgebench/report"
	"github.com/nvr-ai/edgebench/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "EDGEBENCH"

// EngineFactory creates the inference engine for a run. Engines implementing
// io.Closer are closed when the run ends.
type EngineFactory func(options providers.Options) (inference.Engine, error)

// StabilizerFactory creates the device side channel for a run.
type StabilizerFactory func(cfg benchmark.Config) device.Stabilizer

// Dependencies are the collaborators a command tree is built with.
type Dependencies struct {
	Engine     EngineFactory
	Stabilizer StabilizerFactory
	// Now stamps offline reports.
	Now func() time.Time
}

// DefaultDependencies uses ONNX Runtime and external commands.
func DefaultDependencies() Dependencies {
	return Dependencies{
		Engine: func(options providers.Options) (inference.Engine, error) {
			return providers.NewORTEngine(options)
		},
		Stabilizer: func(cfg benchmark.Config) device.Stabilizer {
			if !cfg.Stabilize && !cfg.CaptureBatteryStats {
				return device.NopStabilizer{}
			}
			return device.NewCommandStabilizer(cfg.ResetCommand, cfg.CaptureCommand, cfg.CommandTimeout)
		},
		Now: time.Now,
	}
}

// app holds the state shared by one command tree.
type app struct {
	deps    Dependencies
	v       *viper.Viper
	cfgFile string
	cfg     benchmark.Config
}

// NewRootCommand builds the command tree.
//
// Arguments:
//   - deps: The collaborators; zero fields fall back to DefaultDependencies.
//
// Returns:
//   - *cobra.Command: The root command.
func NewRootCommand(deps Dependencies) *cobra.Command {
	defaults := DefaultDependencies()
	if deps.Engine == nil {
		deps.Engine = defaults.Engine
	}
	if deps.Stabilizer == nil {
		deps.Stabilizer = defaults.Stabilizer
	}
	if deps.Now == nil {
		deps.Now = defaults.Now
	}
	a := &app{deps: deps, v: viper.New()}

	root := &cobra.Command{
		Use:   "edgebench [flags] <model_filename> <warmup_seconds> <silence_seconds> <measurement_seconds>",
		Short: "edgebench measures steady-state ONNX inference throughput and latency",
		Long: `edgebench runs an ONNX model on synthetic inputs for timed warmup, silence and
measurement phases and reports iterations, latency and throughput.

The legacy form "edgebench <model_filename> <duration_seconds>" runs the
measurement phase only.`,
		Args:              checkArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.loadConfig,
		RunE:              a.runBenchmark,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "config file (YAML or JSON)")
	pf.String("log-level", "info", "log level: debug, info, warn or error")
	pf.String("log-format", "console", "log format: console or json")

	f := root.Flags()
	f.String("model-dir", "", "directory holding model files")
	f.String("output-dir", "", "directory receiving measurement files")
	f.String("lifetime", "", "session lifetime: call, phase or run")
	f.Int("intra-op-threads", 0, "threads used within an operator")
	f.Int("inter-op-threads", 0, "threads used across operators")
	f.String("graph-optimization", "", "graph optimization: disable, basic, extended or all")
	f.String("backend", "", "execution provider: cpu, cuda, coreml or openvino")
	f.Int("precision", 0, "decimals written for floating point fields")
	f.Bool("no-stabilize", false, "skip the stabilization reset and delay")
	f.Duration("stabilization-delay", 0, "delay after the stabilization reset")
	f.Bool("capture-battery-stats", false, "capture battery statistics after measurement")
	f.Int("latency-samples", 0, "per-iteration latency samples kept (0 disables)")
	f.String("metrics-textfile", "", "write a Prometheus textfile for the run")
	f.String("library-path", "", "path to the onnxruntime shared library")

	bindings := map[string]string{
		"log_level":             "log-level",
		"log_format":            "log-format",
		"model_dir":             "model-dir",
		"output_dir":            "output-dir",
		"lifetime":              "lifetime",
		"intra_op_threads":      "intra-op-threads",
		"inter_op_threads":      "inter-op-threads",
		"graph_optimization":    "graph-optimization",
		"backend":               "backend",
		"precision":             "precision",
		"stabilization_delay":   "stabilization-delay",
		"capture_battery_stats": "capture-battery-stats",
		"latency_samples":       "latency-samples",
		"metrics_textfile":      "metrics-textfile",
		"library_path":          "library-path",
	}
	for key, name := range bindings {
		flag := pf.Lookup(name)
		if flag == nil {
			flag = f.Lookup(name)
		}
		_ = a.v.BindPFlag(key, flag)
	}

	root.AddCommand(newReportCommand(a))
	return root
}

func checkArgs(cmd *cobra.Command, args []string) error {
	if len(args) != 2 && len(args) != 4 {
		return &benchmark.UsageError{Msg: fmt.Sprintf("expected 2 or 4 arguments, got %d\nusage: %s", len(args), cmd.UseLine())}
	}
	return nil
}

// setDefaults registers every configuration key so the environment can override it.
func setDefaults(v *viper.Viper) {
	d := benchmark.DefaultConfig()
	defaults := map[string]interface{}{
		"model_dir":             d.ModelDir,
		"output_dir":            d.OutputDir,
		"lifetime":              d.Lifetime,
		"precision":             d.Precision,
		"stabilize":             d.Stabilize,
		"stabilization_delay":   d.StabilizationDelay,
		"reset_command":         d.ResetCommand,
		"capture_command":       d.CaptureCommand,
		"capture_battery_stats": d.CaptureBatteryStats,
		"command_timeout":       d.CommandTimeout,
		"latency_samples":       d.LatencySamples,
		"log_level":             d.LogLevel,
		"log_format":            d.LogFormat,
		"metrics_textfile":      d.MetricsTextfile,
		"library_path":          d.LibraryPath,
		"intra_op_threads":      d.IntraOpNumThreads,
		"inter_op_threads":      d.InterOpNumThreads,
		"graph_optimization":    d.GraphOptimization,
		"execution_mode":        d.ExecutionMode,
		"backend":               string(d.Backend),
		"backend_options":       map[string]string{},
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// loadConfig merges defaults, the config file, the environment and flags, in
// increasing order of precedence.
func (a *app) loadConfig(cmd *cobra.Command, args []string) error {
	setDefaults(a.v)
	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return &benchmark.UsageError{Msg: "failed to load config", Err: err}
		}
	}

	if flag := cmd.Flags().Lookup("no-stabilize"); flag != nil && flag.Changed {
		a.v.Set("stabilize", flag.Value.String() != "true")
	}

	cfg := benchmark.DefaultConfig()
	if err := a.v.Unmarshal(&cfg); err != nil {
		return &benchmark.UsageError{Msg: "failed to decode config", Err: err}
	}
	a.cfg = cfg

	logger.Setup(cfg.LogLevel, cfg.LogFormat)
	return nil
}

func (a *app) runBenchmark(cmd *cobra.Command, args []string) error {
	cfg := a.cfg
	if err := cfg.ApplyArgs(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	modelPath, err := util.ResolveModelPath(cfg.ModelDir, cfg.Model)
	if err != nil {
		return &benchmark.UsageError{Msg: "model not found", Err: err}
	}

	engine, err := a.deps.Engine(cfg.Options)
	if err != nil {
		return &inference.ExecutionError{Op: "init", Err: err}
	}
	if closer, ok := engine.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Log.Warn("engine shutdown failed", "error", err)
			}
		}()
	}

	invoker := inference.NewInvoker(engine, modelPath, cfg.SessionLifetime(), nil)
	defer func() {
		if err := invoker.Close(); err != nil {
			logger.Log.Warn("session close failed", "error", err)
		}
	}()

	stabilizer := a.deps.Stabilizer(cfg)

	rec, err := benchmark.NewController(cfg, invoker, stabilizer).Run(cmd.Context())
	if err != nil {
		return err
	}

	reporter := report.NewReporter(cfg.OutputDir, cfg.Precision)
	reporter.MetricsTextfile = cfg.MetricsTextfile
	reporter.Summarize(cmd.OutOrStdout(), rec)

	if path, err := reporter.Persist(rec); err != nil {
		logger.Log.Warn("failed to persist record", "model", rec.Model, "error", err)
	} else {
		logger.Log.Info("record written", "path", path)
	}
	if err := reporter.ExportMetrics(rec); err != nil {
		logger.Log.Warn("failed to export metrics", "model", rec.Model, "error", err)
	}
	if cfg.CaptureBatteryStats {
		captureBatteryStats(cmd.Context(), stabilizer, reporter, rec)
	}
	return nil
}

func captureBatteryStats(ctx context.Context, s device.Stabilizer, r *report.Reporter, rec *benchmark.Record) {
	data, err := s.Capture(ctx)
	if err != nil {
		logger.Log.Warn("battery stats capture failed", "error", err)
		return
	}
	path, err := r.AttachBatteryStats(rec, data)
	if err != nil {
		logger.Log.Warn("failed to write battery stats", "error", err)
		return
	}
	logger.Log.Info("battery stats written", "path", path, "bytes", len(data))
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	var (
		usage   *benchmark.UsageError
		abort   *benchmark.AbortError
		execErr *inference.ExecutionError
	)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	case errors.As(err, &usage), errors.Is(err, util.ErrModelNotFound):
		return 1
	case errors.As(err, &abort), errors.As(err, &execErr):
		return 2
	default:
		return 1
	}
}
