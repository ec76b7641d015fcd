// Package device - Device-level accounting side channel used around measurements.
package device

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single side channel command.
const DefaultTimeout = 10 * time.Second

// Stabilizer resets and captures device accounting counters (battery statistics
// on Android). Both operations are best effort from the caller's point of view.
type Stabilizer interface {
	Reset(ctx context.Context) error
	Capture(ctx context.Context) ([]byte, error)
}

// CommandStabilizer runs external commands for reset and capture.
type CommandStabilizer struct {
	ResetCommand   []string
	CaptureCommand []string
	Timeout        time.Duration
}

// NewCommandStabilizer creates a stabilizer for the given argv commands.
//
// Arguments:
//   - reset: The reset command, e.g. dumpsys batterystats --reset.
//   - capture: The capture command, e.g. dumpsys batterystats.
//   - timeout: Per-command timeout; DefaultTimeout when zero or negative.
//
// Returns:
//   - *CommandStabilizer: The stabilizer.
func NewCommandStabilizer(reset, capture []string, timeout time.Duration) *CommandStabilizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandStabilizer{
		ResetCommand:   reset,
		CaptureCommand: capture,
		Timeout:        timeout,
	}
}

// Reset runs the reset command and discards its output.
func (s *CommandStabilizer) Reset(ctx context.Context) error {
	_, err := s.run(ctx, s.ResetCommand)
	return err
}

// Capture runs the capture command and returns its standard output.
func (s *CommandStabilizer) Capture(ctx context.Context) ([]byte, error) {
	return s.run(ctx, s.CaptureCommand)
}

func (s *CommandStabilizer) run(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("no command configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(argv, " "), ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, msg)
		}
		return nil, fmt.Errorf("%s: %w", strings.Join(argv, " "), err)
	}
	return stdout.Bytes(), nil
}

// NopStabilizer does nothing. Capture returns no data.
type NopStabilizer struct{}

func (NopStabilizer) Reset(context.Context) error { return nil }

func (NopStabilizer) Capture(context.Context) ([]byte, error) { return nil, nil }
