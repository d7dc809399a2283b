package service

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceProbe reports this process's own memory/fd usage as a
// DeepHealthChecker component, following the gopsutil-based sampling
// style used by the example pack's async metrics collectors.
type ResourceProbe struct {
	proc           *process.Process
	maxRSSBytes    uint64
	maxOpenFDs     int32
}

// NewResourceProbe attaches to the current process. maxRSSBytes and
// maxOpenFDs are degraded/unhealthy thresholds; zero disables the
// corresponding check.
func NewResourceProbe(maxRSSBytes uint64, maxOpenFDs int32) (*ResourceProbe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &ResourceProbe{proc: p, maxRSSBytes: maxRSSBytes, maxOpenFDs: maxOpenFDs}, nil
}

// Check implements HealthCheckFunc, reporting RSS, CPU percent, and open
// file descriptor count, degraded when a configured threshold is exceeded.
func (r *ResourceProbe) Check(ctx context.Context) *ComponentHealth {
	now := time.Now()
	mem, err := r.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return &ComponentHealth{Name: "resources", Status: "unhealthy", Message: err.Error(), CheckedAt: now}
	}
	cpuPct, _ := r.proc.CPUPercentWithContext(ctx)
	fds, _ := r.proc.NumFDsWithContext(ctx)

	status := "healthy"
	if r.maxRSSBytes > 0 && mem.RSS > r.maxRSSBytes {
		status = "degraded"
	}
	if r.maxOpenFDs > 0 && fds > r.maxOpenFDs {
		status = "degraded"
	}

	return &ComponentHealth{
		Name:    "resources",
		Status:  status,
		Message: "process memory/fd usage",
		Details: map[string]any{
			"rss_bytes":    mem.RSS,
			"cpu_percent":  cpuPct,
			"open_fds":     fds,
		},
		CheckedAt: now,
	}
}
