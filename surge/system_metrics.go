package surge

import (
	"context"
	"fmt"
)

// Metrics tracks resource usage for worker pool monitoring
type Metrics struct {
	WorkersActive int     `json:"workers_active"` // Workers currently executing tasks
	WorkersTotal  int     `json:"workers_total"`  // Total configured workers
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
	TasksQueued   int     `json:"tasks_queued"`
	TasksClaimed  int     `json:"tasks_claimed"`
}

// getMemoryStats is implemented in platform-specific files:
// - system_metrics_linux.go for Linux
// - system_metrics_other.go reports unsupported elsewhere

// SystemMetrics returns current worker and system resource usage
func (wp *WorkerPool) SystemMetrics(ctx context.Context) Metrics {
	total, available, err := getMemoryStats()

	var memUsedGB, memTotalGB, memPercent float64
	if err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	// Gracefully degrade to zero counts if the queue query fails
	var queued, claimed int
	if stats, statsErr := wp.queue.Stats(ctx); statsErr == nil {
		queued = stats.Queued
		claimed = stats.Claimed
	}

	wp.mu.Lock()
	activeWorkers := wp.activeWorkers
	wp.mu.Unlock()

	return Metrics{
		WorkersActive: activeWorkers,
		WorkersTotal:  wp.workers,
		MemoryUsedGB:  memUsedGB,
		MemoryTotalGB: memTotalGB,
		MemoryPercent: memPercent,
		TasksQueued:   queued,
		TasksClaimed:  claimed,
	}
}

// memoryUsedPercent returns system memory utilization
func memoryUsedPercent() (float64, error) {
	total, available, err := getMemoryStats()
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, fmt.Errorf("memory stats reported zero total")
	}
	return float64(total-available) / float64(total) * 100, nil
}

// memoryOK reports whether workers may claim tasks under the memory
// guard. Unreadable stats disable the guard rather than stall the pool.
func (wp *WorkerPool) memoryOK() bool {
	if wp.poolCfg.MemoryHighWaterPct <= 0 {
		return true
	}

	usedPct, err := memoryUsedPercent()
	if err != nil {
		return true
	}
	return usedPct < wp.poolCfg.MemoryHighWaterPct
}

// checkMemoryPressure validates current memory usage against the
// configured high water mark at startup.
// Returns a warning message if workers would be held back immediately,
// empty string if OK
func (wp *WorkerPool) checkMemoryPressure() string {
	if wp.poolCfg.MemoryHighWaterPct <= 0 {
		return ""
	}

	usedPct, err := memoryUsedPercent()
	if err != nil {
		return "" // Can't check, assume OK
	}

	if usedPct >= wp.poolCfg.MemoryHighWaterPct {
		return fmt.Sprintf(
			"System memory usage (%.1f%%) is above the high water mark (%.1f%%). "+
				"Workers will not claim tasks until usage drops.",
			usedPct, wp.poolCfg.MemoryHighWaterPct)
	}

	return ""
}
