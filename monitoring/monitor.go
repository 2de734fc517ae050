package monitoring

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

type ResourceUsage struct {
	CPUPercent        float64 `json:"cpu_percent"`
	HostCPUPercent    float64 `json:"host_cpu_percent"`
	MemoryUsedMB      float64 `json:"memory_used_mb"`
	MemoryTotalMB     float64 `json:"memory_total_mb"`
	MemoryPercent     float64 `json:"memory_percent"`
	HostMemoryPercent float64 `json:"host_memory_percent"`
	NumGoroutines     int     `json:"goroutines"`
}

// Monitor samples resource usage of the current process.
type Monitor struct {
	proc *process.Process
}

// NewMonitor attaches to the running process.
func NewMonitor() (*Monitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("error getting process: %w", err)
	}
	return &Monitor{proc: proc}, nil
}

// Snapshot samples current usage.
func (m *Monitor) Snapshot() (ResourceUsage, error) {
	return getResourceUsage(m.proc)
}

// Start logs usage every interval until ctx is done.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			usage, err := getResourceUsage(m.proc)
			if err != nil {
				log.Warn().Err(err).Msg("Error getting resource usage")
				continue
			}

			log.Info().
				Float64("cpu_percent", usage.CPUPercent).
				Float64("host_cpu_percent", usage.HostCPUPercent).
				Float64("memory_used_mb", usage.MemoryUsedMB).
				Float64("memory_total_mb", usage.MemoryTotalMB).
				Float64("memory_percent", usage.MemoryPercent).
				Int("goroutines", usage.NumGoroutines).
				Msg("Resource usage")
		}
	}()
}

func getResourceUsage(proc *process.Process) (ResourceUsage, error) {
	var usage ResourceUsage

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return usage, fmt.Errorf("error getting CPU usage: %w", err)
	}
	usage.CPUPercent = cpuPercent

	// Non-blocking; compares against the previous call.
	if host, err := cpu.Percent(0, false); err == nil && len(host) > 0 {
		usage.HostCPUPercent = host[0]
	}

	virtualMem, err := mem.VirtualMemory()
	if err != nil {
		return usage, fmt.Errorf("error getting memory info: %w", err)
	}

	procMem, err := proc.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("error getting process memory: %w", err)
	}

	usage.MemoryUsedMB = float64(procMem.RSS) / 1024 / 1024
	usage.MemoryTotalMB = float64(virtualMem.Total) / 1024 / 1024
	if virtualMem.Total > 0 {
		usage.MemoryPercent = float64(procMem.RSS) / float64(virtualMem.Total) * 100
	}
	usage.HostMemoryPercent = virtualMem.UsedPercent

	usage.NumGoroutines = runtime.NumGoroutine()

	return usage, nil
}
