package events

import "github.com/hugo-lorenzo-mato/vigil/internal/core"

// Event type constants for watchdog escalation events.
const (
	TypeWatchdogLevel1    = "watchdog_level1"
	TypeWatchdogLevel2    = "watchdog_level2"
	TypeWatchdogLevel3    = "watchdog_level3"
	TypeWatchdogRecovered = "watchdog_recovered"
)

const sourceWatchdog = "watchdog"

// WatchdogEscalationEvent is emitted when the watchdog fires a recovery level.
type WatchdogEscalationEvent struct {
	BaseEvent
	Level        string `json:"level"`
	Unresponsive string `json:"unresponsive"`
	SnapshotID   string `json:"snapshot_id,omitempty"`
}

func escalationType(level core.RecoveryLevel) string {
	switch level {
	case core.RecoveryCancelTasks:
		return TypeWatchdogLevel2
	case core.RecoveryResetState:
		return TypeWatchdogLevel3
	default:
		return TypeWatchdogLevel1
	}
}

// NewWatchdogEscalationEvent creates an escalation event for the given level.
func NewWatchdogEscalationEvent(level core.RecoveryLevel, unresponsive string, snapshotID string) WatchdogEscalationEvent {
	return WatchdogEscalationEvent{
		BaseEvent:    NewBaseEvent(escalationType(level), sourceWatchdog),
		Level:        level.String(),
		Unresponsive: unresponsive,
		SnapshotID:   snapshotID,
	}
}

// WatchdogRecoveredEvent is emitted when the primary context acknowledges a
// probe after an escalation episode.
type WatchdogRecoveredEvent struct {
	BaseEvent
	PreviousLevel string `json:"previous_level"`
}

// NewWatchdogRecoveredEvent creates a recovered event.
func NewWatchdogRecoveredEvent(previous core.RecoveryLevel) WatchdogRecoveredEvent {
	return WatchdogRecoveredEvent{
		BaseEvent:     NewBaseEvent(TypeWatchdogRecovered, sourceWatchdog),
		PreviousLevel: previous.String(),
	}
}
