package core

import (
	"fmt"
	"time"
)

// RecoveryLevel is an ordered severity tier of the watchdog's response to an
// unresponsive primary execution context. Escalation within one episode is
// strictly monotonic: level k never fires again after level k+1 has fired.
type RecoveryLevel int

const (
	RecoveryNone RecoveryLevel = iota
	RecoverySnapshot
	RecoveryCancelTasks
	RecoveryResetState
)

// Threshold returns the unresponsiveness duration at which the level fires.
func (l RecoveryLevel) Threshold() time.Duration {
	switch l {
	case RecoverySnapshot:
		return 2 * time.Second
	case RecoveryCancelTasks:
		return 3 * time.Second
	case RecoveryResetState:
		return 4 * time.Second
	default:
		return 0
	}
}

func (l RecoveryLevel) String() string {
	switch l {
	case RecoveryNone:
		return "none"
	case RecoverySnapshot:
		return "snapshot"
	case RecoveryCancelTasks:
		return "cancel_tasks"
	case RecoveryResetState:
		return "reset_state"
	default:
		return "unknown"
	}
}

// ParseRecoveryLevel parses the string form produced by String.
func ParseRecoveryLevel(s string) (RecoveryLevel, error) {
	switch s {
	case "none":
		return RecoveryNone, nil
	case "snapshot":
		return RecoverySnapshot, nil
	case "cancel_tasks":
		return RecoveryCancelTasks, nil
	case "reset_state":
		return RecoveryResetState, nil
	default:
		return RecoveryNone, fmt.Errorf("unknown recovery level %q", s)
	}
}

// RecoveryLevelFor maps an unresponsiveness duration to the highest level
// whose threshold it has reached.
func RecoveryLevelFor(unresponsive time.Duration) RecoveryLevel {
	switch {
	case unresponsive >= RecoveryResetState.Threshold():
		return RecoveryResetState
	case unresponsive >= RecoveryCancelTasks.Threshold():
		return RecoveryCancelTasks
	case unresponsive >= RecoverySnapshot.Threshold():
		return RecoverySnapshot
	default:
		return RecoveryNone
	}
}

// MemoryLevel is an ordered memory-pressure tier. De-escalation back to
// MemoryNormal requires usage to fall below a separate, lower recovery
// threshold (hysteresis), not merely below the threshold that raised it.
type MemoryLevel int

const (
	MemoryNormal MemoryLevel = iota
	MemoryLevel70
	MemoryLevel80
	MemoryLevel90
)

// Threshold returns the usage percentage at which the level is entered.
func (l MemoryLevel) Threshold() float64 {
	switch l {
	case MemoryLevel70:
		return 70
	case MemoryLevel80:
		return 80
	case MemoryLevel90:
		return 90
	default:
		return 0
	}
}

func (l MemoryLevel) String() string {
	switch l {
	case MemoryNormal:
		return "normal"
	case MemoryLevel70:
		return "level70"
	case MemoryLevel80:
		return "level80"
	case MemoryLevel90:
		return "level90"
	default:
		return "unknown"
	}
}

// DefaultMemoryRecoveryThreshold is the percentage below which usage must
// fall before the monitor returns to MemoryNormal.
const DefaultMemoryRecoveryThreshold = 60.0

// MemoryLevelFor classifies a usage percentage given the current level and
// the recovery threshold. Inside the hysteresis band (recovery threshold up
// to the lowest escalation threshold) the current level is preserved.
func MemoryLevelFor(percent float64, current MemoryLevel, recoveryThreshold float64) MemoryLevel {
	switch {
	case percent >= MemoryLevel90.Threshold():
		return MemoryLevel90
	case percent >= MemoryLevel80.Threshold():
		return MemoryLevel80
	case percent >= MemoryLevel70.Threshold():
		return MemoryLevel70
	case percent < recoveryThreshold:
		return MemoryNormal
	default:
		// Dead zone: keep whatever level got us here.
		return current
	}
}
