package snapshot

import (
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/jaypipes/ghw"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
)

// Capturer assembles DiagnosticSnapshot records from its data sources.
// Sources are plain funcs so callers can wire in the task registry, the
// log ring, and the navigation collaborator without import cycles; any
// source may be nil.
type Capturer struct {
	app    core.AppInfo
	device core.DeviceInfo

	memory     func() core.MemoryStats
	activeOps  func() []string
	recentLogs func() []string
	screen     func() string
}

// CapturerOption configures a Capturer.
type CapturerOption func(*Capturer)

// WithMemorySource overrides the memory stats source.
func WithMemorySource(fn func() core.MemoryStats) CapturerOption {
	return func(c *Capturer) { c.memory = fn }
}

// WithActiveOperations sets the active-operation id source.
func WithActiveOperations(fn func() []string) CapturerOption {
	return func(c *Capturer) { c.activeOps = fn }
}

// WithRecentLogs sets the recent log line source.
func WithRecentLogs(fn func() []string) CapturerOption {
	return func(c *Capturer) { c.recentLogs = fn }
}

// WithScreen sets the current-screen source.
func WithScreen(fn func() string) CapturerOption {
	return func(c *Capturer) { c.screen = fn }
}

// NewCapturer creates a Capturer for the named application. Device metadata
// is probed once at construction, best-effort.
func NewCapturer(appName, appVersion, sessionID string, opts ...CapturerOption) *Capturer {
	c := &Capturer{
		app: core.AppInfo{
			Name:      appName,
			Version:   appVersion,
			GoVersion: runtime.Version(),
			PID:       os.Getpid(),
			SessionID: sessionID,
		},
		device: probeDevice(),
		memory: sampleSystemMemory,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture builds an immutable snapshot for the given reason and level.
func (c *Capturer) Capture(reason, level string) *core.DiagnosticSnapshot {
	snap := &core.DiagnosticSnapshot{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Reason:    reason,
		Level:     level,
		Device:    c.device,
		App:       c.app,
	}
	if c.memory != nil {
		snap.Memory = c.memory()
	}
	if c.activeOps != nil {
		snap.ActiveOperations = c.activeOps()
	}
	if c.recentLogs != nil {
		snap.RecentLogs = c.recentLogs()
	}
	if c.screen != nil {
		snap.CurrentScreen = c.screen()
	}
	return snap
}

func probeDevice() core.DeviceInfo {
	info := core.DeviceInfo{
		OS:     runtime.GOOS,
		Arch:   runtime.GOARCH,
		NumCPU: runtime.NumCPU(),
	}
	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	// ghw probes can fail in containers; metadata stays zero-valued then.
	if memory, err := ghw.Memory(); err == nil && memory != nil {
		info.PhysicalMemMB = memory.TotalPhysicalBytes / 1024 / 1024
	}
	return info
}

func sampleSystemMemory() core.MemoryStats {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return core.MemoryStats{}
	}
	return core.MemoryStats{
		UsedMB:  float64(vm.Used) / 1024 / 1024,
		TotalMB: float64(vm.Total) / 1024 / 1024,
		Percent: vm.UsedPercent,
	}
}
