package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemSnapshot is the kind of host-pressure reading a load-aware
// throttle would poll before deciding to shrink its repair-drain batch
// size or widen its inter-message interval. This package only takes
// the snapshot; deciding what to do with it is out of scope (spec.md
// §1's "load-aware throttle" is modeled as an external policy knob).
type SystemSnapshot struct {
	CPUPercent    float64
	MemUsedBytes  uint64
	DiskUsedBytes uint64
}

// Snapshot reads current CPU, memory and disk usage with a bounded
// timeout so a caller on a hot path never blocks indefinitely on it.
func Snapshot(ctx context.Context, dataDir string) (SystemSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var snap SystemSnapshot

	if pct, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snap.MemUsedBytes = vm.Used
	}
	if du, err := disk.UsageWithContext(ctx, dataDir); err == nil {
		snap.DiskUsedBytes = du.Used
	}
	return snap, nil
}

// RunSystemSampler periodically takes a Snapshot and republishes it as
// the CPUUsagePercent/MemoryUsedBytes/DiskUsedBytes gauges, labeled by
// nodeID. It blocks until ctx is cancelled.
func RunSystemSampler(ctx context.Context, nodeID, dataDir string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sampleOnce(ctx, nodeID, dataDir)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sampleOnce(ctx, nodeID, dataDir)
		}
	}
}

func sampleOnce(ctx context.Context, nodeID, dataDir string) {
	snap, err := Snapshot(ctx, dataDir)
	if err != nil {
		return
	}
	CPUUsagePercent.WithLabelValues(nodeID).Set(snap.CPUPercent)
	MemoryUsedBytes.WithLabelValues(nodeID).Set(float64(snap.MemUsedBytes))
	DiskUsedBytes.WithLabelValues(nodeID).Set(float64(snap.DiskUsedBytes))
}
