// Package metrics exposes Prometheus collectors for the resilience core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WatchdogEscalations counts recovery-level firings by level.
	WatchdogEscalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_watchdog_escalations_total",
			Help: "Total number of watchdog recovery escalations",
		},
		[]string{"level"},
	)

	// WatchdogUnresponsiveSeconds tracks the most recent unresponsive span.
	WatchdogUnresponsiveSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_watchdog_unresponsive_seconds",
			Help: "Seconds since the primary context last acknowledged a probe",
		},
	)

	// MemoryUsedPercent tracks the last sampled memory usage percentage.
	MemoryUsedPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_memory_used_percent",
			Help: "Last sampled system memory usage percentage",
		},
	)

	// MemoryLevel tracks the current pressure level as an ordinal (0-3).
	MemoryLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_memory_level",
			Help: "Current memory pressure level (0=normal, 1=70, 2=80, 3=90)",
		},
	)

	// MemoryMitigations counts mitigation applications by level.
	MemoryMitigations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_memory_mitigations_total",
			Help: "Total number of memory mitigations applied",
		},
		[]string{"level"},
	)

	// TasksSubmitted counts operations accepted by the task controller.
	TasksSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_tasks_submitted_total",
			Help: "Total number of tracked operations submitted",
		},
	)

	// TasksCancelled counts operations cancelled before completion.
	TasksCancelled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_tasks_cancelled_total",
			Help: "Total number of tracked operations cancelled",
		},
	)

	// TasksFailed counts operations that finished with an error or timeout.
	TasksFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_tasks_failed_total",
			Help: "Total number of tracked operations that failed",
		},
	)

	// SnapshotsSaved counts persisted diagnostic snapshots.
	SnapshotsSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigil_snapshots_saved_total",
			Help: "Total number of diagnostic snapshots persisted",
		},
	)

	// CrashRecoveries counts startup reconciliation outcomes by kind.
	CrashRecoveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_crash_recoveries_total",
			Help: "Total number of startup crash reconciliation outcomes",
		},
		[]string{"kind"},
	)
)
