// Package benchmark - Phase controller, metrics and run configuration.
package benchmark

import (
	"strconv"
	"strings"
	"time"

	"github.com/nvr-ai/edgebench/inference"
	"github.com/nvr-ai/edgebench/inference/providers"
	"github.com/nvr-ai/edgebench/profiler"
)

// Config is the complete configuration of one benchmark run.
//
// The run plan (Model and the three phase durations) comes from positional
// arguments; everything else may come from a config file, the environment or flags.
type Config struct {
	Model       string        `json:"model"       yaml:"model"       mapstructure:"-"`
	Warmup      time.Duration `json:"warmup"      yaml:"warmup"      mapstructure:"-"`
	Silence     time.Duration `json:"silence"     yaml:"silence"     mapstructure:"-"`
	Measurement time.Duration `json:"measurement" yaml:"measurement" mapstructure:"-"`

	ModelDir  string `json:"model_dir"  yaml:"model_dir"  mapstructure:"model_dir"`
	OutputDir string `json:"output_dir" yaml:"output_dir" mapstructure:"output_dir"`

	// Lifetime is call, phase or run.
	Lifetime string `json:"lifetime" yaml:"lifetime" mapstructure:"lifetime"`

	// Precision is the number of decimals written for floating point fields.
	Precision int `json:"precision" yaml:"precision" mapstructure:"precision"`

	Stabilize           bool          `json:"stabilize"             yaml:"stabilize"             mapstructure:"stabilize"`
	StabilizationDelay  time.Duration `json:"stabilization_delay"   yaml:"stabilization_delay"   mapstructure:"stabilization_delay"`
	ResetCommand        []string      `json:"reset_command"         yaml:"reset_command"         mapstructure:"reset_command"`
	CaptureCommand      []string      `json:"capture_command"       yaml:"capture_command"       mapstructure:"capture_command"`
	CaptureBatteryStats bool          `json:"capture_battery_stats" yaml:"capture_battery_stats" mapstructure:"capture_battery_stats"`
	CommandTimeout      time.Duration `json:"command_timeout"       yaml:"command_timeout"       mapstructure:"command_timeout"`

	// LatencySamples bounds the per-iteration latency reservoir. Zero disables it.
	LatencySamples int `json:"latency_samples" yaml:"latency_samples" mapstructure:"latency_samples"`

	LogLevel        string `json:"log_level"        yaml:"log_level"        mapstructure:"log_level"`
	LogFormat       string `json:"log_format"       yaml:"log_format"       mapstructure:"log_format"`
	MetricsTextfile string `json:"metrics_textfile" yaml:"metrics_textfile" mapstructure:"metrics_textfile"`

	providers.Options `mapstructure:",squash"`
}

// DefaultConfig returns the configuration used on an Android device over adb.
func DefaultConfig() Config {
	return Config{
		ModelDir:           "/data/local/tmp/models",
		OutputDir:          "/data/local/tmp/measurements",
		Lifetime:           string(inference.LifetimeRun),
		Precision:          3,
		Stabilize:          true,
		StabilizationDelay: time.Second,
		ResetCommand:       []string{"dumpsys", "batterystats", "--reset"},
		CaptureCommand:     []string{"dumpsys", "batterystats"},
		CommandTimeout:     10 * time.Second,
		LatencySamples:     profiler.DefaultMaxSamples,
		LogLevel:           "info",
		LogFormat:          "console",
		Options:            providers.DefaultOptions(),
	}
}

// ApplyArgs sets the run plan from positional arguments.
//
// Two forms are accepted:
//   - <model> <warmup_seconds> <silence_seconds> <measurement_seconds>
//   - <model> <duration_seconds>, which runs measurement only
//
// Arguments:
//   - args: The positional arguments.
//
// Returns:
//   - error: A *UsageError if the argument count or a duration is invalid.
func (c *Config) ApplyArgs(args []string) error {
	switch len(args) {
	case 2:
		measurement, err := parseSeconds("duration", args[1])
		if err != nil {
			return err
		}
		c.Model, c.Warmup, c.Silence, c.Measurement = args[0], 0, 0, measurement
	case 4:
		durations := make([]time.Duration, 3)
		for i, name := range []string{"warmup", "silence", "measurement"} {
			d, err := parseSeconds(name, args[i+1])
			if err != nil {
				return err
			}
			durations[i] = d
		}
		c.Model = args[0]
		c.Warmup, c.Silence, c.Measurement = durations[0], durations[1], durations[2]
	default:
		return usagef("expected 2 or 4 arguments, got %d", len(args))
	}
	return nil
}

func parseSeconds(name, s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, &UsageError{Msg: "invalid " + name + " seconds " + strconv.Quote(s), Err: err}
	}
	return time.Duration(n) * time.Second, nil
}

// Validate checks the configuration. Every failure is a *UsageError.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return usagef("model filename is required")
	}
	if c.Measurement <= 0 {
		return usagef("measurement duration must be positive, got %s", c.Measurement)
	}
	if c.Warmup < 0 {
		return usagef("warmup duration must not be negative, got %s", c.Warmup)
	}
	if c.Silence < 0 {
		return usagef("silence duration must not be negative, got %s", c.Silence)
	}
	if _, err := inference.ParseLifetime(c.Lifetime); err != nil {
		return &UsageError{Msg: "invalid lifetime", Err: err}
	}
	if c.Precision < 0 || c.Precision > 9 {
		return usagef("precision must be between 0 and 9, got %d", c.Precision)
	}
	if c.StabilizationDelay < 0 {
		return usagef("stabilization delay must not be negative, got %s", c.StabilizationDelay)
	}
	if c.Stabilize && len(c.ResetCommand) == 0 {
		return usagef("reset_command is required when stabilize is enabled")
	}
	if c.CaptureBatteryStats && len(c.CaptureCommand) == 0 {
		return usagef("capture_command is required when capture_battery_stats is enabled")
	}
	if c.LatencySamples < 0 {
		return usagef("latency_samples must not be negative, got %d", c.LatencySamples)
	}
	if err := c.Options.Validate(); err != nil {
		return &UsageError{Msg: "invalid runtime options", Err: err}
	}
	return nil
}

// SessionLifetime returns the parsed lifetime, falling back to run.
func (c Config) SessionLifetime() inference.Lifetime {
	l, err := inference.ParseLifetime(c.Lifetime)
	if err != nil {
		return inference.LifetimeRun
	}
	return l
}
