package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nvr-ai/edgebench/logger"
)

// Execute runs the command line with os.Args and returns the process exit status.
// SIGINT and SIGTERM cancel the run at the next iteration boundary.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCommand(DefaultDependencies()).ExecuteContext(ctx)
	code := ExitCode(err)
	switch code {
	case 0:
	case 130:
		logger.Log.Warn("interrupted", "error", err)
	default:
		logger.Log.Error("edgebench failed", "error", err, "exit_code", code)
	}
	return code
}
