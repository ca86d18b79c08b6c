package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Watchdog   WatchdogConfig   `mapstructure:"watchdog"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Snapshots  SnapshotsConfig  `mapstructure:"snapshots"`
	CrashState CrashStateConfig `mapstructure:"crash_state"`
	API        APIConfig        `mapstructure:"api"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// WatchdogConfig configures the heartbeat watchdog. Durations are strings
// ("500ms", "2s") parsed by the validator.
type WatchdogConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ProbeInterval string `mapstructure:"probe_interval"`
	SnapshotAfter string `mapstructure:"snapshot_after"`
	CancelAfter   string `mapstructure:"cancel_after"`
	ResetAfter    string `mapstructure:"reset_after"`
}

// MemoryConfig configures the memory pressure monitor.
type MemoryConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	SampleInterval    string  `mapstructure:"sample_interval"`
	RecoveryThreshold float64 `mapstructure:"recovery_threshold"`
	PurgeMinInterval  string  `mapstructure:"purge_min_interval"`
}

// SnapshotsConfig configures the diagnostic snapshot store.
type SnapshotsConfig struct {
	Dir        string `mapstructure:"dir"`
	MaxRecords int    `mapstructure:"max_records"`
}

// CrashStateConfig configures the durable crash-state store. A path ending
// in .db selects the SQLite backend; anything else gets a JSON file.
type CrashStateConfig struct {
	Path                  string `mapstructure:"path"`
	MaxConsecutiveCrashes int    `mapstructure:"max_consecutive_crashes"`
}

// APIConfig configures the local observability HTTP server.
type APIConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Duration helpers. The validator guarantees these parse, so parse
// failures after validation fall back to zero and the caller's default.

func (c WatchdogConfig) ProbeIntervalDuration() time.Duration { return parseDuration(c.ProbeInterval) }

// ThresholdDurations returns the snapshot/cancel/reset thresholds.
func (c WatchdogConfig) ThresholdDurations() (snapshotAfter, cancelAfter, resetAfter time.Duration) {
	return parseDuration(c.SnapshotAfter), parseDuration(c.CancelAfter), parseDuration(c.ResetAfter)
}

func (c MemoryConfig) SampleIntervalDuration() time.Duration { return parseDuration(c.SampleInterval) }

func (c MemoryConfig) PurgeMinIntervalDuration() time.Duration {
	return parseDuration(c.PurgeMinInterval)
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
