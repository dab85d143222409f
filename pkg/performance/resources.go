// Package performance reports the resource usage of a run.
package performance

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceMonitor samples the CPU and memory use of the current process
// relative to the moment it was created.
type ResourceMonitor struct {
	process      *process.Process
	startCPUTime float64
	startTime    time.Time
	mu           sync.Mutex
	peakRSS      uint64
}

// ResourceUsage contains resource usage information
type ResourceUsage struct {
	// CPUPercent is CPU time over wall time since the monitor started;
	// it exceeds 100 when several cores are busy.
	CPUPercent            float64
	MemoryRSS             uint64
	PeakRSS               uint64
	SystemMemoryPercent   float64
	SystemMemoryAvailable uint64
	GoroutineCount        int
}

// NewResourceMonitor creates a resource monitor for this process.
func NewResourceMonitor() (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	rm := &ResourceMonitor{process: proc, startTime: time.Now()}
	if cpuTime, err := proc.Times(); err == nil {
		rm.startCPUTime = cpuTime.Total()
	}
	return rm, nil
}

// Usage returns current resource usage. Fields the platform cannot report
// are left zero.
func (rm *ResourceMonitor) Usage() *ResourceUsage {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	usage := &ResourceUsage{GoroutineCount: runtime.NumGoroutine()}

	if cpuTime, err := rm.process.Times(); err == nil {
		if elapsed := time.Since(rm.startTime).Seconds(); elapsed > 0 {
			usage.CPUPercent = (cpuTime.Total() - rm.startCPUTime) / elapsed * 100
		}
	}

	if memInfo, err := rm.process.MemoryInfo(); err == nil {
		usage.MemoryRSS = memInfo.RSS
		if memInfo.RSS > rm.peakRSS {
			rm.peakRSS = memInfo.RSS
		}
	}
	usage.PeakRSS = rm.peakRSS

	if vmStat, err := mem.VirtualMemory(); err == nil {
		usage.SystemMemoryPercent = vmStat.UsedPercent
		usage.SystemMemoryAvailable = vmStat.Available
	}
	return usage
}

// AvailableMemory returns the memory available to new allocations, or 0
// when it cannot be determined.
func AvailableMemory() uint64 {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vmStat.Available
}
