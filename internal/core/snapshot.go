package core

import "time"

// MemoryStats captures process-visible memory numbers at snapshot time.
type MemoryStats struct {
	UsedMB  float64 `json:"used_mb"`
	TotalMB float64 `json:"total_mb"`
	Percent float64 `json:"percent"`
}

// DeviceInfo holds device metadata attached to a snapshot. Best-effort;
// missing probes leave zero values.
type DeviceInfo struct {
	Hostname      string `json:"hostname,omitempty"`
	OS            string `json:"os"`
	Arch          string `json:"arch"`
	PhysicalMemMB int64  `json:"physical_mem_mb,omitempty"`
	NumCPU        int    `json:"num_cpu"`
}

// AppInfo identifies the application that produced a snapshot.
type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	PID       int    `json:"pid"`
	SessionID string `json:"session_id,omitempty"`
}

// DiagnosticSnapshot is an immutable record of application state captured
// when an escalation fires. It is never mutated after creation.
type DiagnosticSnapshot struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	Level     string    `json:"level"`

	Memory           MemoryStats `json:"memory"`
	CurrentScreen    string      `json:"current_screen,omitempty"`
	ActiveOperations []string    `json:"active_operations,omitempty"`
	RecentLogs       []string    `json:"recent_logs,omitempty"`

	Device DeviceInfo `json:"device"`
	App    AppInfo    `json:"app"`
}
