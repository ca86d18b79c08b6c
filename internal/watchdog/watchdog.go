// Package watchdog detects prolonged unresponsiveness of the primary
// execution context and escalates through ordered recovery levels. Within
// one unresponsiveness episode escalation is strictly monotonic: a level
// never fires twice, and jumping straight to a high level first executes
// the skipped lower levels in order.
package watchdog

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

// DefaultProbeInterval is the cadence at which probes are posted to the
// primary context.
const DefaultProbeInterval = 500 * time.Millisecond

// EscalationFunc is invoked after a level's mitigation has run. snap is
// non-nil for levels that capture a snapshot.
type EscalationFunc func(level core.RecoveryLevel, snap *core.DiagnosticSnapshot)

// Watchdog probes the primary execution context at a fixed cadence and
// drives the recovery escalation state machine.
type Watchdog struct {
	prober     Prober
	interval   time.Duration
	thresholds map[core.RecoveryLevel]time.Duration

	tasks     *taskctl.Controller
	collabs   core.Collaborators
	bus       *events.Bus
	logger    *slog.Logger
	capturer  *snapshot.Capturer
	snapshots *snapshot.Store

	onEscalation EscalationFunc

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	lastAck  time.Time
	probeSeq uint64
	ackSeq   uint64
	level    core.RecoveryLevel

	counters [core.RecoveryResetState + 1]atomic.Int64
}

// Option configures the watchdog.
type Option func(*Watchdog)

// WithProbeInterval overrides the probe cadence.
func WithProbeInterval(d time.Duration) Option {
	return func(w *Watchdog) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithThresholds overrides the per-level unresponsiveness thresholds.
// Thresholds must be strictly increasing with level; values <= 0 keep the
// default.
func WithThresholds(snapshotAfter, cancelAfter, resetAfter time.Duration) Option {
	return func(w *Watchdog) {
		if snapshotAfter > 0 {
			w.thresholds[core.RecoverySnapshot] = snapshotAfter
		}
		if cancelAfter > 0 {
			w.thresholds[core.RecoveryCancelTasks] = cancelAfter
		}
		if resetAfter > 0 {
			w.thresholds[core.RecoveryResetState] = resetAfter
		}
	}
}

// WithCollaborators sets the ports touched by level-2 and level-3
// mitigations.
func WithCollaborators(c core.Collaborators) Option {
	return func(w *Watchdog) { w.collabs = c }
}

// WithSnapshots enables snapshot capture and persistence on escalation.
func WithSnapshots(capturer *snapshot.Capturer, store *snapshot.Store) Option {
	return func(w *Watchdog) {
		w.capturer = capturer
		w.snapshots = store
	}
}

// WithOnEscalation registers a callback invoked after each fired level.
func WithOnEscalation(fn EscalationFunc) Option {
	return func(w *Watchdog) { w.onEscalation = fn }
}

// New creates a watchdog probing the given primary context. logger and bus
// may be nil.
func New(prober Prober, tasks *taskctl.Controller, bus *events.Bus, logger *slog.Logger, opts ...Option) *Watchdog {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Watchdog{
		prober:   prober,
		interval: DefaultProbeInterval,
		thresholds: map[core.RecoveryLevel]time.Duration{
			core.RecoverySnapshot:    core.RecoverySnapshot.Threshold(),
			core.RecoveryCancelTasks: core.RecoveryCancelTasks.Threshold(),
			core.RecoveryResetState:  core.RecoveryResetState.Threshold(),
		},
		tasks:  tasks,
		bus:    bus,
		logger: logger.With("component", "watchdog"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins probing. Idempotent; a second Start while running is a
// no-op. Escalation state resets to none on every start.
func (w *Watchdog) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.level = core.RecoveryNone
	w.lastAck = time.Now()
	w.ackSeq = w.probeSeq
	stopCh := w.stopCh
	w.mu.Unlock()

	w.logger.Info("watchdog started", "interval", w.interval)
	go w.loop(ctx, stopCh)
}

// Stop halts probing. Idempotent. An escalation already in flight still
// completes, but no further probes or escalations occur.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	w.logger.Info("watchdog stopped")
}

// Reconfigure applies a new probe cadence and thresholds. Values <= 0
// keep the current setting. If the loop is running it restarts, which
// also begins a fresh escalation episode.
func (w *Watchdog) Reconfigure(ctx context.Context, interval, snapshotAfter, cancelAfter, resetAfter time.Duration) {
	w.mu.Lock()
	if interval > 0 {
		w.interval = interval
	}
	if snapshotAfter > 0 {
		w.thresholds[core.RecoverySnapshot] = snapshotAfter
	}
	if cancelAfter > 0 {
		w.thresholds[core.RecoveryCancelTasks] = cancelAfter
	}
	if resetAfter > 0 {
		w.thresholds[core.RecoveryResetState] = resetAfter
	}
	wasRunning := w.running
	w.mu.Unlock()

	if wasRunning {
		w.Stop()
		w.Start(ctx)
	}
}

// IsRunning reports whether the probe loop is active.
func (w *Watchdog) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// CurrentLevel returns the escalation level of the current episode.
func (w *Watchdog) CurrentLevel() core.RecoveryLevel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.level
}

// LevelCount returns how many times the given level has fired since
// construction.
func (w *Watchdog) LevelCount(level core.RecoveryLevel) int64 {
	if level < 0 || int(level) >= len(w.counters) {
		return 0
	}
	return w.counters[level].Load()
}

func (w *Watchdog) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-stopCh:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick checks the outstanding probe and posts a new one if the previous
// was acknowledged. At most one probe is outstanding at a time, so a
// stalled context accumulates no backlog of acknowledgment closures.
func (w *Watchdog) tick(ctx context.Context) {
	w.mu.Lock()
	pending := w.probeSeq != w.ackSeq
	elapsed := time.Since(w.lastAck)
	current := w.level
	w.mu.Unlock()

	if pending {
		metrics.WatchdogUnresponsiveSeconds.Set(elapsed.Seconds())
		if target := w.levelFor(elapsed); target > current {
			w.escalate(ctx, target, elapsed)
		}
		return
	}

	metrics.WatchdogUnresponsiveSeconds.Set(0)
	w.postProbe()
}

// levelFor maps an unresponsiveness duration to the highest level whose
// threshold it has reached.
func (w *Watchdog) levelFor(elapsed time.Duration) core.RecoveryLevel {
	w.mu.Lock()
	defer w.mu.Unlock()
	level := core.RecoveryNone
	for l := core.RecoverySnapshot; l <= core.RecoveryResetState; l++ {
		if elapsed >= w.thresholds[l] {
			level = l
		}
	}
	return level
}

func (w *Watchdog) postProbe() {
	w.mu.Lock()
	w.probeSeq++
	seq := w.probeSeq
	w.mu.Unlock()

	w.prober.Probe(func() { w.acknowledge(seq) })
}

func (w *Watchdog) acknowledge(seq uint64) {
	w.mu.Lock()
	if seq != w.probeSeq {
		// Stale probe from before a level-3 re-arm.
		w.mu.Unlock()
		return
	}
	w.ackSeq = seq
	w.lastAck = time.Now()
	prev := w.level
	w.level = core.RecoveryNone
	w.mu.Unlock()

	if prev > core.RecoveryNone {
		w.logger.Info("primary context recovered", "previous_level", prev.String())
		if w.bus != nil {
			w.bus.Publish(events.NewWatchdogRecoveredEvent(prev))
		}
	}
}

// escalate fires every level between the current one and target, in
// order, each at most once per episode.
func (w *Watchdog) escalate(ctx context.Context, target core.RecoveryLevel, elapsed time.Duration) {
	w.mu.Lock()
	from := w.level
	if target <= from {
		w.mu.Unlock()
		return
	}
	w.level = target
	w.mu.Unlock()

	w.logger.Warn("primary context unresponsive",
		"elapsed", elapsed.Round(time.Millisecond),
		"from", from.String(),
		"to", target.String())

	for level := from + 1; level <= target; level++ {
		w.fire(ctx, level, elapsed)
	}
}

// TriggerRecovery runs the mitigation chain up to the given level, firing
// any level of the current episode that has not fired yet. Manual surface
// for verification; the probe state machine is untouched.
func (w *Watchdog) TriggerRecovery(ctx context.Context, level core.RecoveryLevel) {
	w.escalate(ctx, level, 0)
}

// fire runs one level's mitigation. Every internal failure is swallowed:
// the recovery path must never destabilize the host it is recovering.
func (w *Watchdog) fire(ctx context.Context, level core.RecoveryLevel, elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("mitigation panicked", "level", level.String(), "panic", fmt.Sprint(r))
		}
	}()

	w.counters[level].Add(1)
	metrics.WatchdogEscalations.WithLabelValues(level.String()).Inc()

	var snap *core.DiagnosticSnapshot
	switch level {
	case core.RecoverySnapshot:
		snap = w.captureSnapshot("watchdog_unresponsive", level)

	case core.RecoveryCancelTasks:
		if w.tasks != nil {
			w.tasks.CancelAll()
		}
		if w.collabs.Jobs != nil {
			if err := w.collabs.Jobs.CancelAllJobs(ctx); err != nil {
				w.logger.Error("job cancellation failed", "error", err)
			}
		}
		if w.collabs.Caches != nil {
			if err := w.collabs.Caches.ClearCaches(ctx); err != nil {
				w.logger.Error("cache clear failed", "error", err)
			}
		}
		if w.collabs.Timers != nil {
			w.collabs.Timers.InvalidateAll()
		}

	case core.RecoveryResetState:
		snap = w.captureSnapshot("watchdog_reset_state", level)
		if w.collabs.Nav != nil {
			w.collabs.Nav.ResetToSafeScreen()
		}
		w.rearm()
	}

	w.logger.Warn("recovery level fired", "level", level.String())
	if w.bus != nil {
		var snapID string
		if snap != nil {
			snapID = snap.ID
		}
		w.bus.Publish(events.NewWatchdogEscalationEvent(level, elapsed.Round(time.Millisecond).String(), snapID))
	}
	if w.onEscalation != nil {
		w.onEscalation(level, snap)
	}
}

func (w *Watchdog) captureSnapshot(reason string, level core.RecoveryLevel) *core.DiagnosticSnapshot {
	if w.capturer == nil {
		return nil
	}
	snap := w.capturer.Capture(reason, level.String())
	if w.snapshots != nil {
		if err := w.snapshots.Save(snap); err != nil {
			w.logger.Error("snapshot save failed", "error", err)
		}
	}
	return snap
}

// rearm invalidates the outstanding probe and restarts the unresponsive
// clock, giving the primary context a fresh window after a full reset.
func (w *Watchdog) rearm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.probeSeq++
	w.ackSeq = w.probeSeq
	w.lastAck = time.Now()
}
