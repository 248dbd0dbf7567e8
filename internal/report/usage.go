package report

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// Usage is the resource usage of the running process.
type Usage struct {
	RSSMB      float64 // resident set size in MB
	UserCPU    float64 // seconds
	SystemCPU  float64 // seconds
	NumThreads int32
}

// CurrentUsage reads the resource usage of this process.
func CurrentUsage() (*Usage, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	usage := &Usage{}

	memInfo, err := p.MemoryInfo()
	if err != nil {
		return nil, err
	}
	usage.RSSMB = float64(memInfo.RSS) / 1024 / 1024

	// CPU times and thread count may be unavailable on some platforms
	if times, err := p.Times(); err == nil {
		usage.UserCPU = times.User
		usage.SystemCPU = times.System
	}
	if numThreads, err := p.NumThreads(); err == nil {
		usage.NumThreads = numThreads
	}

	return usage, nil
}
