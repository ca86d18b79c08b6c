package events

// Event type constants for crash recovery events.
const (
	TypeNavigationReset  = "navigation_reset"
	TypeCleanupPerformed = "cleanup_performed"
)

const sourceCrashGuard = "crash_guard"

// NavigationResetEvent asks the presentation layer to return to a safe screen.
type NavigationResetEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

// NewNavigationResetEvent creates a navigation reset event.
func NewNavigationResetEvent(source, reason string) NavigationResetEvent {
	return NavigationResetEvent{
		BaseEvent: NewBaseEvent(TypeNavigationReset, source),
		Reason:    reason,
	}
}

// CleanupPerformedEvent is emitted after a startup or manual state cleanup.
type CleanupPerformedEvent struct {
	BaseEvent
	Steps []string `json:"steps"`
}

// NewCleanupPerformedEvent creates a cleanup performed event.
func NewCleanupPerformedEvent(steps []string) CleanupPerformedEvent {
	return CleanupPerformedEvent{
		BaseEvent: NewBaseEvent(TypeCleanupPerformed, sourceCrashGuard),
		Steps:     steps,
	}
}
