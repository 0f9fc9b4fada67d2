// Package health samples host utilization for the stats endpoint.
package health

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// sampleWindow is how long the CPU reading observes the host. Matches the
// stats endpoint's documented half-second sampling behavior.
const sampleWindow = 500 * time.Millisecond

// Utilization thresholds, in percent, above which the host is unhealthy.
const (
	cpuThreshold = 80.0
	memThreshold = 80.0
)

// Sample is one point-in-time host utilization reading.
type Sample struct {
	CPUPercent float64
	MemPercent float64
}

// Healthy reports whether both utilization figures are under their
// thresholds.
func (s Sample) Healthy() bool {
	return s.CPUPercent < cpuThreshold && s.MemPercent < memThreshold
}

// Read samples CPU utilization over a short window plus current memory
// usage. Partial readings are returned alongside the error so callers can
// stay best-effort.
func Read(ctx context.Context) (Sample, error) {
	var sample Sample

	percents, cpuErr := cpu.PercentWithContext(ctx, sampleWindow, false)
	if cpuErr == nil && len(percents) > 0 {
		sample.CPUPercent = percents[0]
	}

	vm, memErr := mem.VirtualMemoryWithContext(ctx)
	if memErr == nil {
		sample.MemPercent = vm.UsedPercent
	}

	if cpuErr != nil {
		return sample, cpuErr
	}
	return sample, memErr
}
