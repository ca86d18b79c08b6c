package memory

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
)

// Sampler reports current memory usage.
type Sampler interface {
	Sample() (core.MemoryStats, error)
}

// SystemSampler reads system virtual memory via gopsutil.
type SystemSampler struct{}

// Sample implements Sampler.
func (SystemSampler) Sample() (core.MemoryStats, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return core.MemoryStats{}, err
	}
	return core.MemoryStats{
		UsedMB:  float64(vm.Used) / 1024 / 1024,
		TotalMB: float64(vm.Total) / 1024 / 1024,
		Percent: vm.UsedPercent,
	}, nil
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func() (core.MemoryStats, error)

// Sample implements Sampler.
func (f SamplerFunc) Sample() (core.MemoryStats, error) {
	return f()
}
