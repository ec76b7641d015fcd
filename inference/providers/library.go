// Package providers - Shared library discovery and environment lifecycle.
package providers

import (
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/nvr-ai/edgebench/logger"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides the platform default shared library location.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

var envMu sync.Mutex

// SharedLibraryPath returns the onnxruntime shared library to load.
//
// Resolution order: explicit, then $ONNXRUNTIME_SHARED_LIBRARY_PATH, then a
// platform default.
//
// Arguments:
//   - explicit: A configured path; empty to fall back.
//
// Returns:
//   - string: The path to the shared library.
func SharedLibraryPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(LibraryPathEnv); env != "" {
		return env
	}
	return defaultLibraryPath(runtime.GOOS, runtime.GOARCH)
}

func defaultLibraryPath(goos, goarch string) string {
	switch goos {
	case "android":
		return "/data/local/tmp/libonnxruntime.so"
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	case "linux":
		if goarch == "arm64" {
			return "libonnxruntime_arm64.so"
		}
		return "libonnxruntime.so"
	default:
		return "onnxruntime.so"
	}
}

// InitializeEnvironment loads the shared library and prepares the process-wide
// ONNX Runtime environment. Calling it again after a successful initialization
// is a no-op.
func InitializeEnvironment(libraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}

	path := SharedLibraryPath(libraryPath)
	// Bare file names are left to the dynamic loader's search path.
	if strings.ContainsRune(path, os.PathSeparator) {
		if _, err := os.Stat(path); err != nil {
			return errors.Wrapf(err, "ONNX Runtime library not found at %s", path)
		}
	}

	ort.SetSharedLibraryPath(path)
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrapf(err, "error initializing ORT environment from %s", path)
	}
	// Only valid once the environment exists.
	if err := ort.SetEnvironmentLogLevel(ort.LoggingLevelWarning); err != nil {
		logger.Log.Warn("could not set ONNX Runtime log level", "error", err)
	}
	return nil
}

// DestroyEnvironment tears down the ONNX Runtime environment if it was initialized.
func DestroyEnvironment() error {
	envMu.Lock()
	defer envMu.Unlock()

	if !ort.IsInitialized() {
		return nil
	}
	return errors.Wrap(ort.DestroyEnvironment(), "error destroying ORT environment")
}
