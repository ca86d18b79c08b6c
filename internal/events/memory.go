package events

import "github.com/hugo-lorenzo-mato/vigil/internal/core"

// Event type constants for memory pressure events.
const (
	TypeMemoryLevel70    = "memory_level70"
	TypeMemoryLevel80    = "memory_level80"
	TypeMemoryLevel90    = "memory_level90"
	TypeMemoryRecovered  = "memory_recovered"
	TypeMemoryForcePurge = "memory_force_purge"
)

const sourceMemory = "memory_monitor"

// MemoryPressureEvent is emitted on every memory level transition.
type MemoryPressureEvent struct {
	BaseEvent
	Level       string  `json:"level"`
	UsedPercent float64 `json:"used_percent"`
	UsedMB      float64 `json:"used_mb"`
	TotalMB     float64 `json:"total_mb"`
}

func memoryEventType(level core.MemoryLevel) string {
	switch level {
	case core.MemoryLevel70:
		return TypeMemoryLevel70
	case core.MemoryLevel80:
		return TypeMemoryLevel80
	case core.MemoryLevel90:
		return TypeMemoryLevel90
	default:
		return TypeMemoryRecovered
	}
}

// NewMemoryPressureEvent creates a memory level transition event.
func NewMemoryPressureEvent(level core.MemoryLevel, stats core.MemoryStats) MemoryPressureEvent {
	return MemoryPressureEvent{
		BaseEvent:   NewBaseEvent(memoryEventType(level), sourceMemory),
		Level:       level.String(),
		UsedPercent: stats.Percent,
		UsedMB:      stats.UsedMB,
		TotalMB:     stats.TotalMB,
	}
}

// MemoryForcePurgeEvent is emitted when a level-90 forced purge runs.
type MemoryForcePurgeEvent struct {
	BaseEvent
	Trigger string `json:"trigger"` // "sampled" or "system_signal"
}

// NewMemoryForcePurgeEvent creates a forced purge event.
func NewMemoryForcePurgeEvent(trigger string) MemoryForcePurgeEvent {
	return MemoryForcePurgeEvent{
		BaseEvent: NewBaseEvent(TypeMemoryForcePurge, sourceMemory),
		Trigger:   trigger,
	}
}
