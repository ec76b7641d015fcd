// Package util - Model and measurement file discovery.
package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrModelNotFound is returned when the model file does not exist under the model directory.
var ErrModelNotFound = errors.New("model file not found")

// PerformanceSuffix ends every persisted benchmark record file name.
const PerformanceSuffix = "_performance.csv"

// BatteryStatsSuffix ends every captured battery statistics file name.
const BatteryStatsSuffix = "_batterystats.txt"

// ResolveModelPath joins the model directory and filename and checks the result
// is an existing regular file. There is no search path.
//
// Arguments:
// - baseDir: The fixed model directory.
// - filename: The model filename given on the command line.
//
// Returns:
// - string: The model path.
// - error: An error wrapping ErrModelNotFound if the file is missing.
func ResolveModelPath(baseDir, filename string) (string, error) {
	path := filepath.Join(baseDir, filename)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrModelNotFound, path)
		}
		return "", fmt.Errorf("failed to stat model %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrModelNotFound, path)
	}
	return path, nil
}

// SanitizeName makes a model name safe to embed in a file name by replacing
// path separators with underscores.
func SanitizeName(name string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(name)
}

// MeasurementFile is one persisted benchmark record and its optional battery statistics.
type MeasurementFile struct {
	// Base is the shared file name prefix, <model>_<YYYYMMDD_HHMMSS>.
	Base string
	// Performance is the record CSV path.
	Performance string
	// BatteryStats is the battery statistics path, empty when none was captured.
	BatteryStats string
}

// ListMeasurementFiles reads all record files from a directory and pairs each
// with its battery statistics file.
//
// Arguments:
// - dir: Directory containing measurement files.
//
// Returns:
// - []MeasurementFile: Files sorted by base name.
// - error: Error if the directory cannot be read.
func ListMeasurementFiles(dir string) ([]MeasurementFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			present[entry.Name()] = true
		}
	}

	var files []MeasurementFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), PerformanceSuffix) {
			continue
		}
		base := strings.TrimSuffix(entry.Name(), PerformanceSuffix)
		f := MeasurementFile{
			Base:        base,
			Performance: filepath.Join(dir, entry.Name()),
		}
		if present[base+BatteryStatsSuffix] {
			f.BatteryStats = filepath.Join(dir, base+BatteryStatsSuffix)
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Base < files[j].Base
	})

	return files, nil
}
