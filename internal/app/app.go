// Package app is the composition root. It constructs the resilience
// components from configuration, wires them together, and owns their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hugo-lorenzo-mato/vigil/internal/api"
	"github.com/hugo-lorenzo-mato/vigil/internal/config"
	"github.com/hugo-lorenzo-mato/vigil/internal/core"
	"github.com/hugo-lorenzo-mato/vigil/internal/crashstate"
	"github.com/hugo-lorenzo-mato/vigil/internal/events"
	"github.com/hugo-lorenzo-mato/vigil/internal/guard"
	"github.com/hugo-lorenzo-mato/vigil/internal/logging"
	"github.com/hugo-lorenzo-mato/vigil/internal/memory"
	"github.com/hugo-lorenzo-mato/vigil/internal/snapshot"
	"github.com/hugo-lorenzo-mato/vigil/internal/taskctl"
	"github.com/hugo-lorenzo-mato/vigil/internal/watchdog"
)

// App holds every constructed component of the resilience core.
type App struct {
	cfg     *config.Config
	version string

	Logger    *logging.Logger
	Bus       *events.Bus
	Tasks     *taskctl.Controller
	Guard     *guard.Guard
	Snapshots *snapshot.Store
	Capturer  *snapshot.Capturer
	Crash     *crashstate.Guard
	Monitor   *memory.Monitor
	Watchdog  *watchdog.Watchdog
	API       *api.Server

	collabs core.Collaborators
	prober  watchdog.Prober
	loop    *watchdog.Loop

	crashStore crashstate.Store

	mu     sync.Mutex
	closed bool
}

// Option configures the application.
type Option func(*App)

// WithCollaborators injects the host's mitigation ports. Without them the
// core still runs; mitigations skip absent collaborators.
func WithCollaborators(c core.Collaborators) Option {
	return func(a *App) { a.collabs = c }
}

// WithProber injects the host's primary execution context. Defaults to an
// internal serialized loop.
func WithProber(p watchdog.Prober) Option {
	return func(a *App) { a.prober = p }
}

// WithVersion sets the version recorded in diagnostic snapshots.
func WithVersion(v string) Option {
	return func(a *App) { a.version = v }
}

// WithLogger replaces the logger built from cfg.Log.
func WithLogger(l *logging.Logger) Option {
	return func(a *App) { a.Logger = l }
}

// New builds the full component graph from cfg. Nothing starts running
// until Run.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, version: "dev"}
	for _, opt := range opts {
		opt(a)
	}

	if a.Logger == nil {
		a.Logger = logging.New(logging.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		})
	}
	if a.prober == nil {
		a.loop = watchdog.NewLoop()
		a.prober = a.loop
	}

	a.Bus = events.New(100)
	a.Tasks = taskctl.New(a.Logger.Logger)
	a.Guard = guard.New(a.Logger.Logger)

	store, err := snapshot.NewStore(cfg.Snapshots.Dir, a.Logger.Logger,
		snapshot.WithMaxRecords(cfg.Snapshots.MaxRecords))
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}
	a.Snapshots = store

	a.Capturer = snapshot.NewCapturer("vigil", a.version, uuid.NewString(),
		snapshot.WithActiveOperations(a.Tasks.ActiveIDs),
		snapshot.WithRecentLogs(a.Logger.RecentLines),
		snapshot.WithScreen(a.currentScreen),
	)

	crashStore, err := crashstate.NewStore(cfg.CrashState.Path)
	if err != nil {
		return nil, fmt.Errorf("crash state store: %w", err)
	}
	a.crashStore = crashStore
	a.Crash = crashstate.NewGuard(crashStore, a.Logger.Logger, a.Bus,
		crashstate.WithCollaborators(a.collabs),
		crashstate.WithValueGuardRecorder(a.Guard.Recorder()),
		crashstate.WithMaxConsecutiveCrashes(cfg.CrashState.MaxConsecutiveCrashes),
	)

	a.Monitor = memory.NewMonitor(a.Tasks, a.Bus, a.Logger.Logger,
		memory.WithSampleInterval(cfg.Memory.SampleIntervalDuration()),
		memory.WithRecoveryThreshold(cfg.Memory.RecoveryThreshold),
		memory.WithPurgeMinInterval(cfg.Memory.PurgeMinIntervalDuration()),
		memory.WithCollaborators(a.collabs),
		memory.WithSnapshots(a.Capturer, a.Snapshots),
	)

	snapshotAfter, cancelAfter, resetAfter := cfg.Watchdog.ThresholdDurations()
	a.Watchdog = watchdog.New(a.prober, a.Tasks, a.Bus, a.Logger.Logger,
		watchdog.WithProbeInterval(cfg.Watchdog.ProbeIntervalDuration()),
		watchdog.WithThresholds(snapshotAfter, cancelAfter, resetAfter),
		watchdog.WithCollaborators(a.collabs),
		watchdog.WithSnapshots(a.Capturer, a.Snapshots),
	)

	if cfg.API.Enabled {
		a.API = api.NewServer(a.Snapshots, a.Watchdog, a.Monitor, a.Tasks, a.Bus,
			api.WithLogger(a.Logger.Logger),
			api.WithAllowedOrigins(cfg.API.AllowedOrigins),
		)
	}

	return a, nil
}

func (a *App) currentScreen() string {
	if a.collabs.Nav == nil {
		return ""
	}
	return a.collabs.Nav.CurrentScreen()
}

// StartupCheck reconciles crash state persisted by the previous run. On a
// recovery or full-reset verdict it performs state cleanup before
// returning the verdict to the caller.
func (a *App) StartupCheck(ctx context.Context) (core.StartupVerdict, error) {
	verdict, err := a.Crash.PerformStartupCheck()
	if err != nil {
		return verdict, err
	}
	if verdict.Kind != core.StartupHealthy {
		a.Logger.Warn("previous session terminated abnormally",
			"verdict", verdict.Kind,
			"reason", verdict.Reason,
			"region", verdict.LastRegion,
			"crash_count", verdict.CrashCount)
		a.Crash.PerformStateCleanup(ctx)
	}
	return verdict, nil
}

// Run performs the startup check, starts the watchdog and memory monitor,
// and blocks until ctx is cancelled. The API server runs when enabled.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.StartupCheck(ctx); err != nil {
		return fmt.Errorf("startup check: %w", err)
	}

	if a.cfg.Watchdog.Enabled {
		a.Watchdog.Start(ctx)
	}
	if a.cfg.Memory.Enabled {
		a.Monitor.Start(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	if a.API != nil {
		g.Go(func() error {
			err := a.API.ListenAndServe(ctx, a.cfg.API.Addr)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return err
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err := g.Wait()
	a.Shutdown()
	return err
}

// ApplyConfig applies a changed configuration to the running components.
// Only watchdog and memory timing settings take effect live; storage and
// API settings apply on the next start.
func (a *App) ApplyConfig(ctx context.Context, cfg *config.Config) {
	snapshotAfter, cancelAfter, resetAfter := cfg.Watchdog.ThresholdDurations()
	a.Watchdog.Reconfigure(ctx, cfg.Watchdog.ProbeIntervalDuration(), snapshotAfter, cancelAfter, resetAfter)
	a.Monitor.Reconfigure(ctx, cfg.Memory.SampleIntervalDuration(), cfg.Memory.RecoveryThreshold, cfg.Memory.PurgeMinIntervalDuration())
	a.Logger.Info("applied configuration change",
		"probe_interval", cfg.Watchdog.ProbeInterval,
		"sample_interval", cfg.Memory.SampleInterval)
}

// Shutdown stops all components. Safe to call more than once.
func (a *App) Shutdown() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	a.mu.Unlock()

	a.Watchdog.Stop()
	a.Monitor.Stop()
	a.Bus.Close()
	if a.loop != nil {
		a.loop.Close()
	}
	if err := a.crashStore.Close(); err != nil {
		a.Logger.Error("closing crash state store", "error", err)
	}
	a.Logger.Info("shutdown complete")
}
