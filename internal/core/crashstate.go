package core

import "time"

// CrashState is the durable record of dangerous-region and fatal-condition
// flags. It is written with a synchronous flush so it survives a hard kill,
// read once at startup, then cleared or updated.
type CrashState struct {
	InDangerousRegion     bool      `json:"in_dangerous_region"`
	RegionName            string    `json:"region_name,omitempty"`
	Context               string    `json:"context,omitempty"`
	EnteredAt             time.Time `json:"entered_at,omitempty"`
	FatalFlag             bool      `json:"fatal_flag"`
	FatalReason           string    `json:"fatal_reason,omitempty"`
	ConsecutiveCrashCount int       `json:"consecutive_crash_count"`
}

// StartupVerdictKind classifies the result of the startup reconciliation.
type StartupVerdictKind string

const (
	StartupHealthy          StartupVerdictKind = "healthy"
	StartupRequireRecovery  StartupVerdictKind = "require_recovery"
	StartupRequireFullReset StartupVerdictKind = "require_full_reset"
)

// StartupVerdict is returned by the crash-state startup check.
type StartupVerdict struct {
	Kind       StartupVerdictKind
	Reason     string
	LastRegion string
	CrashCount int
}
