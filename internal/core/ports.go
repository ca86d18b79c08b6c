package core

import "context"

// Collaborator ports. The resilience core issues generic commands through
// these interfaces; the implementations (renderers, caches, schedulers,
// navigation) live in the host application.

// JobCanceller cancels outstanding render/processing jobs.
type JobCanceller interface {
	CancelAllJobs(ctx context.Context) error
}

// CacheClearer drops page/image caches held by the host.
type CacheClearer interface {
	ClearCaches(ctx context.Context) error
}

// TimerInvalidator invalidates all scheduled timers.
type TimerInvalidator interface {
	InvalidateAll()
}

// PrefetchController enables or disables pre-fetch/pre-render work.
type PrefetchController interface {
	SetPrefetchEnabled(enabled bool)
}

// Navigator reports the current screen and resets the presentation layer
// to a known-safe one.
type Navigator interface {
	CurrentScreen() string
	ResetToSafeScreen()
}

// Collaborators bundles the ports a mitigation can touch. Any field may be
// nil; mitigations skip absent collaborators.
type Collaborators struct {
	Jobs     JobCanceller
	Caches   CacheClearer
	Timers   TimerInvalidator
	Prefetch PrefetchController
	Nav      Navigator
}
