// Package memory classifies system memory usage into discrete pressure
// levels and applies escalating, cumulative mitigations. De-escalation to
// normal requires usage to drop below a separate recovery threshold
// (hysteresis) so the level cannot flap inside the dead zone.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
	"github.com/hugo-lorenzo-mato/vigil/internal/events"
	"github.com/hugo-lorenzo-mato/vigil/internal/metrics"
	"github.com/hugo-lorenzo-mato/vigil/internal/snapshot"
	"github.com/hugo-lorenzo-mato/vigil/internal/taskctl"
)

const (
	// DefaultSampleInterval is the cadence of the sampling loop.
	DefaultSampleInterval = 2 * time.Second

	// DefaultPurgeMinInterval is the minimum spacing between forced
	// level-90 purges, to avoid thrashing.
	DefaultPurgeMinInterval = 3 * time.Second

	historySize = 120
)

// Monitor samples memory usage and drives the pressure state machine.
type Monitor struct {
	sampler           Sampler
	interval          time.Duration
	recoveryThreshold float64
	purgeMinInterval  time.Duration

	tasks     *taskctl.Controller
	collabs   core.Collaborators
	bus       *events.Bus
	logger    *slog.Logger
	capturer  *snapshot.Capturer
	snapshots *snapshot.Store

	mu        sync.Mutex
	level     core.MemoryLevel
	lastStats core.MemoryStats
	lastPurge time.Time
	history   []core.MemoryStats
	running   bool
	stopCh    chan struct{}

	lowMemCh     chan struct{}
	warningCount atomic.Int64
}

// Option configures the monitor.
type Option func(*Monitor)

// WithSampler overrides the memory sampler.
func WithSampler(s Sampler) Option {
	return func(m *Monitor) { m.sampler = s }
}

// WithSampleInterval overrides the sampling cadence.
func WithSampleInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithRecoveryThreshold overrides the de-escalation threshold.
func WithRecoveryThreshold(pct float64) Option {
	return func(m *Monitor) {
		if pct > 0 {
			m.recoveryThreshold = pct
		}
	}
}

// WithPurgeMinInterval overrides the forced-purge rate limit.
func WithPurgeMinInterval(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.purgeMinInterval = d
		}
	}
}

// WithCollaborators wires the mitigation collaborators.
func WithCollaborators(c core.Collaborators) Option {
	return func(m *Monitor) { m.collabs = c }
}

// WithSnapshots wires snapshot capture on escalation.
func WithSnapshots(capturer *snapshot.Capturer, store *snapshot.Store) Option {
	return func(m *Monitor) {
		m.capturer = capturer
		m.snapshots = store
	}
}

// NewMonitor creates a memory pressure monitor. logger and bus may be nil.
func NewMonitor(tasks *taskctl.Controller, bus *events.Bus, logger *slog.Logger, opts ...Option) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Monitor{
		sampler:           SystemSampler{},
		interval:          DefaultSampleInterval,
		recoveryThreshold: core.DefaultMemoryRecoveryThreshold,
		purgeMinInterval:  DefaultPurgeMinInterval,
		tasks:             tasks,
		bus:               bus,
		logger:            logger,
		lowMemCh:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins the sampling loop. Idempotent.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	go m.loop(ctx, stopCh)
}

// Stop halts the loop and immediately suppresses further mitigation side
// effects. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
}

func (m *Monitor) stopped(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

func (m *Monitor) loop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Initial sample so the level is meaningful right after Start.
	m.sampleOnce(ctx, stopCh)

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stopCh:
			return
		case <-m.lowMemCh:
			if m.stopped(stopCh) {
				return
			}
			m.forceCritical(ctx, stopCh, "system_signal")
		case <-ticker.C:
			m.sampleOnce(ctx, stopCh)
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context, stopCh <-chan struct{}) {
	stats, err := m.sampler.Sample()
	if err != nil {
		m.logger.Warn("memory sample failed", "error", err)
		return
	}

	m.mu.Lock()
	m.lastStats = stats
	m.history = append(m.history, stats)
	if len(m.history) > historySize {
		m.history = m.history[len(m.history)-historySize:]
	}
	current := m.level
	recovery := m.recoveryThreshold
	m.mu.Unlock()

	metrics.MemoryUsedPercent.Set(stats.Percent)

	target := core.MemoryLevelFor(stats.Percent, current, recovery)
	if target == current {
		return
	}
	if m.stopped(stopCh) {
		return
	}
	m.transition(ctx, stopCh, current, target, stats)
}

// transition moves the state machine from current to target, applying
// cumulative mitigations on the way up and recovery on the way down.
func (m *Monitor) transition(ctx context.Context, stopCh <-chan struct{}, current, target core.MemoryLevel, stats core.MemoryStats) {
	switch {
	case target > current:
		// Fire every skipped level exactly once, in order.
		for lvl := current + 1; lvl <= target; lvl++ {
			if m.stopped(stopCh) {
				return
			}
			m.applyMitigation(ctx, lvl, "sampled")
		}
		m.warningCount.Add(1)
		m.captureSnapshot(target, stats)
	case target == core.MemoryNormal:
		m.recover()
	default:
		// Downward move between elevated levels: reclassify only.
		m.logger.Info("memory pressure easing", "from", current.String(), "to", target.String())
	}

	m.mu.Lock()
	m.level = target
	m.mu.Unlock()

	metrics.MemoryLevel.Set(float64(target))
	if m.bus != nil {
		m.bus.Publish(events.NewMemoryPressureEvent(target, stats))
	}
}

// applyMitigation runs one level's mitigation. Failures are logged and
// swallowed so the mitigation path cannot destabilize the application.
func (m *Monitor) applyMitigation(ctx context.Context, level core.MemoryLevel, trigger string) {
	metrics.MemoryMitigations.WithLabelValues(level.String()).Inc()
	m.logger.Warn("applying memory mitigation", "level", level.String(), "trigger", trigger)

	switch level {
	case core.MemoryLevel70:
		if m.collabs.Prefetch != nil {
			m.collabs.Prefetch.SetPrefetchEnabled(false)
		}
	case core.MemoryLevel80:
		if m.tasks != nil {
			m.tasks.CancelNonEssential()
		}
	case core.MemoryLevel90:
		m.forcePurge(ctx, trigger)
	}
}

// forcePurge clears caches and cancels all tracked work, rate-limited so
// repeated level-90 pressure cannot thrash the caches.
func (m *Monitor) forcePurge(ctx context.Context, trigger string) {
	m.mu.Lock()
	if since := time.Since(m.lastPurge); since < m.purgeMinInterval {
		m.mu.Unlock()
		m.logger.Debug("skipping purge inside rate limit", "since_last", since)
		return
	}
	m.lastPurge = time.Now()
	m.mu.Unlock()

	if m.collabs.Caches != nil {
		if err := m.collabs.Caches.ClearCaches(ctx); err != nil {
			m.logger.Warn("cache purge failed", "error", err)
		}
	}
	if m.tasks != nil {
		m.tasks.CancelAll()
	}
	if m.bus != nil {
		m.bus.Publish(events.NewMemoryForcePurgeEvent(trigger))
	}
}

// forceCritical applies the full level-90 mitigation stack regardless of
// the sampled percentage, in response to a system low-memory signal.
func (m *Monitor) forceCritical(ctx context.Context, stopCh <-chan struct{}, trigger string) {
	m.mu.Lock()
	current := m.level
	stats := m.lastStats
	m.mu.Unlock()

	if current < core.MemoryLevel90 {
		m.transition(ctx, stopCh, current, core.MemoryLevel90, stats)
		return
	}
	// Already critical: still honor the signal with a (rate-limited) purge.
	m.forcePurge(ctx, trigger)
}

func (m *Monitor) recover() {
	m.logger.Info("memory pressure recovered")
	if m.collabs.Prefetch != nil {
		m.collabs.Prefetch.SetPrefetchEnabled(true)
	}
}

func (m *Monitor) captureSnapshot(level core.MemoryLevel, stats core.MemoryStats) {
	if m.capturer == nil || m.snapshots == nil {
		return
	}
	snap := m.capturer.Capture(fmt.Sprintf("memory pressure %.1f%%", stats.Percent), level.String())
	if err := m.snapshots.Save(snap); err != nil {
		m.logger.Warn("saving memory snapshot failed", "error", err)
	}
}

// NotifyLowMemory feeds a system-level low-memory signal into the loop.
// Forces level-90 mitigation unconditionally on the next loop turn.
func (m *Monitor) NotifyLowMemory() {
	select {
	case m.lowMemCh <- struct{}{}:
	default:
	}
}

// PerformCleanup manually runs the full critical mitigation stack,
// bypassing the purge rate limit.
func (m *Monitor) PerformCleanup(ctx context.Context) {
	m.mu.Lock()
	m.lastPurge = time.Time{}
	m.mu.Unlock()

	// Not gated on the run loop: the manual surface works while stopped.
	m.applyMitigation(ctx, core.MemoryLevel90, "manual")
}

// Reconfigure applies new timing settings. Values <= 0 keep the current
// setting. If the loop is running it restarts so the new sample interval
// takes effect; the pressure level carries over.
func (m *Monitor) Reconfigure(ctx context.Context, sampleInterval time.Duration, recoveryThreshold float64, purgeMinInterval time.Duration) {
	m.mu.Lock()
	if sampleInterval > 0 {
		m.interval = sampleInterval
	}
	if recoveryThreshold > 0 {
		m.recoveryThreshold = recoveryThreshold
	}
	if purgeMinInterval > 0 {
		m.purgeMinInterval = purgeMinInterval
	}
	wasRunning := m.running
	m.mu.Unlock()

	if wasRunning {
		m.Stop()
		m.Start(ctx)
	}
}

// CurrentLevel returns the current pressure level.
func (m *Monitor) CurrentLevel() core.MemoryLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// IsDegraded reports whether any mitigation level is active.
func (m *Monitor) IsDegraded() bool {
	return m.CurrentLevel() != core.MemoryNormal
}

// IsRunning reports whether the sampling loop is active.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// WarningCount returns the number of upward escalations observed.
func (m *Monitor) WarningCount() int64 {
	return m.warningCount.Load()
}

// FormatUsage returns the last sample as a human-readable string.
func (m *Monitor) FormatUsage() string {
	m.mu.Lock()
	stats := m.lastStats
	m.mu.Unlock()
	return fmt.Sprintf("%.1f MB / %.1f MB (%.1f%%)", stats.UsedMB, stats.TotalMB, stats.Percent)
}

// History returns the bounded sample history, oldest first.
func (m *Monitor) History() []core.MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.MemoryStats, len(m.history))
	copy(out, m.history)
	return out
}
