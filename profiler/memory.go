package profiler

import (
	"fmt"
	"runtime"
)

// MemoryMetrics captures Go heap statistics. Native allocations made by the
// inference engine are not visible here.
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// ReadMemory forces a collection and returns the resulting heap statistics.
func ReadMemory() MemoryMetrics {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	return MemoryMetrics{
		AllocBytes:      m.Alloc,
		TotalAllocBytes: m.TotalAlloc,
		HeapAllocBytes:  m.HeapAlloc,
		NumGC:           m.NumGC,
	}
}

// Since returns the growth from start to m. Live heap growth may be negative.
func (m MemoryMetrics) Since(start MemoryMetrics) MemoryDelta {
	return MemoryDelta{
		HeapAllocBytes:  int64(m.HeapAllocBytes) - int64(start.HeapAllocBytes),
		TotalAllocBytes: m.TotalAllocBytes - start.TotalAllocBytes,
		NumGC:           m.NumGC - start.NumGC,
	}
}

// MemoryDelta is the difference between two snapshots.
type MemoryDelta struct {
	HeapAllocBytes  int64  `json:"heap_alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// FormatBytes renders a byte count with a binary unit suffix.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
