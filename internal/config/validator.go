package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateWatchdog(&cfg.Watchdog)
	v.validateMemory(&cfg.Memory)
	v.validateSnapshots(&cfg.Snapshots)
	v.validateCrashState(&cfg.CrashState)
	v.validateAPI(&cfg.API)

	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value interface{}, msg string) {
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: msg,
	})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	switch cfg.Level {
	case "debug", "info", "warn", "error":
	default:
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}
	switch cfg.Format {
	case "auto", "json", "text":
	default:
		v.addError("log.format", cfg.Format, "must be one of: auto, json, text")
	}
}

func (v *Validator) validateWatchdog(cfg *WatchdogConfig) {
	interval := v.duration("watchdog.probe_interval", cfg.ProbeInterval)
	if interval > 0 && interval > time.Second {
		v.addError("watchdog.probe_interval", cfg.ProbeInterval, "probe cadence above 1s makes the thresholds too coarse")
	}

	snapshotAfter := v.duration("watchdog.snapshot_after", cfg.SnapshotAfter)
	cancelAfter := v.duration("watchdog.cancel_after", cfg.CancelAfter)
	resetAfter := v.duration("watchdog.reset_after", cfg.ResetAfter)
	if snapshotAfter > 0 && cancelAfter > 0 && resetAfter > 0 {
		if !(snapshotAfter < cancelAfter && cancelAfter < resetAfter) {
			v.addError("watchdog.snapshot_after", fmt.Sprintf("%s/%s/%s", cfg.SnapshotAfter, cfg.CancelAfter, cfg.ResetAfter),
				"thresholds must be strictly increasing")
		}
	}
}

func (v *Validator) validateMemory(cfg *MemoryConfig) {
	v.duration("memory.sample_interval", cfg.SampleInterval)
	v.duration("memory.purge_min_interval", cfg.PurgeMinInterval)

	if cfg.RecoveryThreshold <= 0 || cfg.RecoveryThreshold >= 70 {
		v.addError("memory.recovery_threshold", cfg.RecoveryThreshold,
			"must be above 0 and below the 70% escalation threshold")
	}
}

func (v *Validator) validateSnapshots(cfg *SnapshotsConfig) {
	if cfg.Dir == "" {
		v.addError("snapshots.dir", cfg.Dir, "must not be empty")
	}
	if cfg.MaxRecords <= 0 {
		v.addError("snapshots.max_records", cfg.MaxRecords, "must be positive")
	}
}

func (v *Validator) validateCrashState(cfg *CrashStateConfig) {
	if cfg.Path == "" {
		v.addError("crash_state.path", cfg.Path, "must not be empty")
	}
	if cfg.MaxConsecutiveCrashes < 1 {
		v.addError("crash_state.max_consecutive_crashes", cfg.MaxConsecutiveCrashes, "must be at least 1")
	}
}

func (v *Validator) validateAPI(cfg *APIConfig) {
	if !cfg.Enabled {
		return
	}
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		v.addError("api.addr", cfg.Addr, "must be a host:port address")
	}
}

// duration parses a duration field, recording an error on failure. Returns
// zero when the value does not parse.
func (v *Validator) duration(field, value string) time.Duration {
	if value == "" {
		v.addError(field, value, "must not be empty")
		return 0
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "must be a duration like 500ms or 2s")
		return 0
	}
	if d <= 0 {
		v.addError(field, value, "must be positive")
		return 0
	}
	return d
}
