package config

// DefaultConfigYAML contains the default configuration YAML content.
// Used by `vigil init` so a fresh project starts from a documented file.
const DefaultConfigYAML = `# Vigil configuration
#
# Values not specified here use sensible defaults.

log:
  level: info
  # auto | json | text (auto picks text on a terminal, json otherwise)
  format: auto

# Heartbeat watchdog for the primary execution context.
# Escalation: snapshot -> cancel tasks -> reset state, monotonic per episode.
watchdog:
  enabled: true
  probe_interval: 500ms
  snapshot_after: 2s
  cancel_after: 3s
  reset_after: 4s

# Memory pressure monitor with hysteresis. Escalation thresholds are fixed
# at 70/80/90%; recovery_threshold is the de-escalation floor.
memory:
  enabled: true
  sample_interval: 2s
  recovery_threshold: 60
  purge_min_interval: 3s

# Bounded diagnostic snapshot store, one JSON file per snapshot.
snapshots:
  dir: .vigil/snapshots
  max_records: 20

# Durable crash-state flags. A .db path selects the SQLite backend.
crash_state:
  path: .vigil/state/crash.json
  max_consecutive_crashes: 3

# Local observability HTTP server (snapshots + Prometheus metrics).
api:
  enabled: false
  addr: 127.0.0.1:8700
  allowed_origins: ["*"]
`
