package crashstate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
	"github.com/hugo-lorenzo-mato/vigil/internal/events"
	"github.com/hugo-lorenzo-mato/vigil/internal/guard"
	"github.com/hugo-lorenzo-mato/vigil/internal/metrics"
)

const (
	stateKey     = "crash/state"
	regionPrefix = "region/"

	// DefaultMaxConsecutiveCrashes is the count at which the startup check
	// demands a full reset instead of a lightweight recovery.
	DefaultMaxConsecutiveCrashes = 3
)

// Guard brackets dangerous code regions with durable markers and stages
// recovery on the next startup.
type Guard struct {
	store          Store
	logger         *slog.Logger
	bus            *events.Bus
	collabs        core.Collaborators
	valueGuard     *guard.Recorder
	maxConsecutive int
}

// Option configures the Guard.
type Option func(*Guard)

// WithCollaborators wires the cleanup collaborators.
func WithCollaborators(c core.Collaborators) Option {
	return func(g *Guard) { g.collabs = c }
}

// WithValueGuardRecorder lets cleanup clear value-guard diagnostics.
func WithValueGuardRecorder(r *guard.Recorder) Option {
	return func(g *Guard) { g.valueGuard = r }
}

// WithMaxConsecutiveCrashes overrides the full-reset threshold.
func WithMaxConsecutiveCrashes(n int) Option {
	return func(g *Guard) {
		if n > 0 {
			g.maxConsecutive = n
		}
	}
}

// NewGuard creates a Guard over store. logger and bus may be nil.
func NewGuard(store Store, logger *slog.Logger, bus *events.Bus, opts ...Option) *Guard {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	g := &Guard{
		store:          store,
		logger:         logger,
		bus:            bus,
		maxConsecutive: DefaultMaxConsecutiveCrashes,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Guard) load() (core.CrashState, error) {
	raw, ok, err := g.store.Get(stateKey)
	if err != nil {
		return core.CrashState{}, fmt.Errorf("loading crash state: %w", err)
	}
	if !ok {
		return core.CrashState{}, nil
	}
	var state core.CrashState
	if err := json.Unmarshal(raw, &state); err != nil {
		// Corrupt state is treated as absent rather than blocking startup.
		g.logger.Warn("discarding corrupt crash state", "error", err)
		return core.CrashState{}, nil
	}
	return state, nil
}

func (g *Guard) save(state core.CrashState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling crash state: %w", err)
	}
	if err := g.store.Set(stateKey, raw); err != nil {
		return fmt.Errorf("persisting crash state: %w", err)
	}
	return nil
}

// MarkDangerousEntry durably records entry into a crash-prone region.
func (g *Guard) MarkDangerousEntry(region, context string) error {
	state, err := g.load()
	if err != nil {
		return err
	}
	state.InDangerousRegion = true
	state.RegionName = region
	state.Context = context
	state.EnteredAt = time.Now().UTC()
	g.logger.Debug("entering dangerous region", "region", region)
	return g.save(state)
}

// MarkSafeExit clears the pending danger marker. Call only after the
// bracketed code completed without crashing.
func (g *Guard) MarkSafeExit() error {
	state, err := g.load()
	if err != nil {
		return err
	}
	state.InDangerousRegion = false
	state.RegionName = ""
	state.Context = ""
	state.EnteredAt = time.Time{}
	return g.save(state)
}

// MarkFatalUIState durably records an unrecoverable condition signalled by
// the host and increments the consecutive crash count.
func (g *Guard) MarkFatalUIState(reason string) error {
	state, err := g.load()
	if err != nil {
		return err
	}
	state.FatalFlag = true
	state.FatalReason = reason
	state.ConsecutiveCrashCount++
	g.logger.Error("fatal state recorded", "reason", reason, "consecutive", state.ConsecutiveCrashCount)
	return g.save(state)
}

// PerformStartupCheck reconciles the previous session's flags. A dangerous
// region that was never exited counts as a crash. The verdict escalates to
// a full reset once the consecutive crash count reaches the threshold; a
// clean state resets the count to zero.
func (g *Guard) PerformStartupCheck() (core.StartupVerdict, error) {
	state, err := g.load()
	if err != nil {
		return core.StartupVerdict{}, err
	}

	if !state.FatalFlag && !state.InDangerousRegion {
		if state.ConsecutiveCrashCount != 0 {
			state.ConsecutiveCrashCount = 0
			if err := g.save(state); err != nil {
				return core.StartupVerdict{}, err
			}
		}
		metrics.CrashRecoveries.WithLabelValues(string(core.StartupHealthy)).Inc()
		return core.StartupVerdict{Kind: core.StartupHealthy}, nil
	}

	reason := state.FatalReason
	if reason == "" {
		reason = fmt.Sprintf("process died inside dangerous region %q", state.RegionName)
	}
	if !state.FatalFlag {
		// Unexited dangerous region: the crash was never explicitly
		// flagged, so count it here.
		state.ConsecutiveCrashCount++
	}

	verdict := core.StartupVerdict{
		Reason:     reason,
		LastRegion: state.RegionName,
		CrashCount: state.ConsecutiveCrashCount,
	}
	if state.ConsecutiveCrashCount >= g.maxConsecutive {
		verdict.Kind = core.StartupRequireFullReset
	} else {
		verdict.Kind = core.StartupRequireRecovery
	}

	// Clear the flags but keep the count: only a clean startup resets it.
	state.FatalFlag = false
	state.FatalReason = ""
	state.InDangerousRegion = false
	state.RegionName = ""
	state.Context = ""
	state.EnteredAt = time.Time{}
	if err := g.save(state); err != nil {
		return core.StartupVerdict{}, err
	}

	metrics.CrashRecoveries.WithLabelValues(string(verdict.Kind)).Inc()
	g.logger.Warn("startup reconciliation required",
		"kind", string(verdict.Kind),
		"reason", verdict.Reason,
		"region", verdict.LastRegion,
		"crash_count", verdict.CrashCount,
	)
	return verdict, nil
}

// SetRegionValue stashes a region-scoped value. Region keys are cleared as
// a unit by PerformStateCleanup.
func (g *Guard) SetRegionValue(region, key string, value []byte) error {
	return g.store.Set(regionPrefix+region+"/"+key, value)
}

// RegionValue reads a region-scoped value.
func (g *Guard) RegionValue(region, key string) ([]byte, bool, error) {
	return g.store.Get(regionPrefix + region + "/" + key)
}

// PerformStateCleanup clears region-scoped keys, purges collaborator
// caches, resets navigation, and clears value-guard diagnostics. Invoked
// once the presentation layer has acknowledged the recovery prompt.
// Individual step failures are logged, never propagated.
func (g *Guard) PerformStateCleanup(ctx context.Context) {
	var steps []string
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		keys, err := g.store.Keys(regionPrefix)
		if err != nil {
			g.logger.Warn("listing region keys failed", "error", err)
			return nil
		}
		for _, key := range keys {
			if err := g.store.Delete(key); err != nil {
				g.logger.Warn("deleting region key failed", "key", key, "error", err)
			}
		}
		return nil
	})
	steps = append(steps, "region_keys")

	if g.collabs.Caches != nil {
		eg.Go(func() error {
			if err := g.collabs.Caches.ClearCaches(egCtx); err != nil {
				g.logger.Warn("cache purge failed", "error", err)
			}
			return nil
		})
		steps = append(steps, "caches")
	}

	if g.collabs.Nav != nil {
		g.collabs.Nav.ResetToSafeScreen()
		if g.bus != nil {
			g.bus.PublishPriority(events.NewNavigationResetEvent("crash_guard", "startup recovery"))
		}
		steps = append(steps, "navigation")
	}

	if g.valueGuard != nil {
		g.valueGuard.Reset()
		steps = append(steps, "value_guard_diagnostics")
	}

	_ = eg.Wait()

	if g.bus != nil {
		g.bus.Publish(events.NewCleanupPerformedEvent(steps))
	}
	g.logger.Info("state cleanup performed", "steps", steps)
}
