// Package taskctl is the central registry for cancellable asynchronous
// operations. Every operation is keyed by a string id with
// at-most-one-active-per-id semantics: resubmitting under an active id
// cancels the prior operation before the new one starts. Cancellation is
// cooperative; operations must observe their context at suspension points.
package taskctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hugo-lorenzo-mato/vigil/internal/core"
	"github.com/hugo-lorenzo-mato/vigil/internal/metrics"
)

// Typed results surfaced to callers.
var (
	ErrTimeout   = core.ErrTimeout("operation timed out")
	ErrCancelled = core.ErrCancelled("operation cancelled")
)

// Operation is one cancellable unit of work.
type Operation func(ctx context.Context) (any, error)

// SubmitOption configures a submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	essential bool
}

// Essential marks an operation as essential so CancelNonEssential spares it.
func Essential() SubmitOption {
	return func(o *submitOptions) {
		o.essential = true
	}
}

type entry struct {
	id        string
	essential bool
	cancel    context.CancelCauseFunc
}

// Stats holds monotonic operation counters.
type Stats struct {
	Submitted int64
	Failed    int64
	Cancelled int64
}

// Controller tracks in-flight operations. Registry mutation is confined to
// one mutex; the operations themselves run concurrently in the background.
type Controller struct {
	mu     sync.Mutex
	ops    map[string]*entry
	logger *slog.Logger

	submitted atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// New creates a Controller. logger may be nil.
func New(logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Controller{
		ops:    make(map[string]*entry),
		logger: logger,
	}
}

// Submit runs op under id, racing it against timeout. The loser of the race
// is cancelled; whichever side completes first determines the result. A
// prior operation under the same id is cancelled before op starts.
func (c *Controller) Submit(ctx context.Context, id string, timeout time.Duration, op Operation, opts ...SubmitOption) (any, error) {
	return c.run(ctx, id, timeout, op, opts...)
}

// SubmitUnbounded runs op under id with the same registry and cancellation
// semantics but no timeout race. For long-running work.
func (c *Controller) SubmitUnbounded(ctx context.Context, id string, op Operation, opts ...SubmitOption) (any, error) {
	return c.run(ctx, id, 0, op, opts...)
}

type opResult struct {
	value any
	err   error
}

func (c *Controller) run(ctx context.Context, id string, timeout time.Duration, op Operation, opts ...SubmitOption) (any, error) {
	var options submitOptions
	for _, opt := range opts {
		opt(&options)
	}

	opCtx, cancel := context.WithCancelCause(ctx)
	e := &entry{id: id, essential: options.essential, cancel: cancel}
	c.register(e)

	c.submitted.Add(1)
	metrics.TasksSubmitted.Inc()

	// Buffered so a late completion after timeout or cancellation is
	// discarded without leaking the goroutine.
	done := make(chan opResult, 1)
	go func() {
		value, err := op(opCtx)
		done <- opResult{value: value, err: err}
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case res := <-done:
		c.deregister(e)
		cancel(nil)
		if res.err != nil {
			c.failed.Add(1)
			metrics.TasksFailed.Inc()
			return nil, core.ErrExecution("OPERATION_FAILED", fmt.Sprintf("operation %q failed", id)).WithCause(res.err)
		}
		return res.value, nil

	case <-timeoutCh:
		c.deregister(e)
		cancel(ErrTimeout)
		c.failed.Add(1)
		metrics.TasksFailed.Inc()
		c.logger.Warn("operation timed out", "id", id, "timeout", timeout)
		return nil, ErrTimeout

	case <-opCtx.Done():
		c.deregister(e)
		cause := context.Cause(opCtx)
		switch {
		case errors.Is(cause, ErrCancelled):
			return nil, ErrCancelled
		case errors.Is(cause, context.DeadlineExceeded):
			c.failed.Add(1)
			metrics.TasksFailed.Inc()
			return nil, ErrTimeout
		case errors.Is(cause, context.Canceled):
			// Parent context cancelled from outside the registry.
			return nil, ErrCancelled
		default:
			return nil, cause
		}
	}
}

// register installs e, cancelling any prior operation under the same id
// before e becomes visible.
func (c *Controller) register(e *entry) {
	c.mu.Lock()
	prior, ok := c.ops[e.id]
	if ok {
		delete(c.ops, e.id)
	}
	c.ops[e.id] = e
	c.mu.Unlock()

	if ok {
		prior.cancel(ErrCancelled)
		c.cancelled.Add(1)
		metrics.TasksCancelled.Inc()
		c.logger.Debug("superseded operation", "id", e.id)
	}
}

// deregister removes e if it is still the registered operation for its id.
func (c *Controller) deregister(e *entry) {
	c.mu.Lock()
	if current, ok := c.ops[e.id]; ok && current == e {
		delete(c.ops, e.id)
	}
	c.mu.Unlock()
}

// Cancel cancels the operation under id. No-op if absent.
func (c *Controller) Cancel(id string) {
	c.mu.Lock()
	e, ok := c.ops[id]
	if ok {
		delete(c.ops, id)
	}
	c.mu.Unlock()

	if ok {
		e.cancel(ErrCancelled)
		c.cancelled.Add(1)
		metrics.TasksCancelled.Inc()
	}
}

// CancelByPrefix cancels all operations whose id starts with prefix.
func (c *Controller) CancelByPrefix(prefix string) {
	c.cancelMatching(func(e *entry) bool {
		return strings.HasPrefix(e.id, prefix)
	})
}

// CancelAll cancels every tracked operation.
func (c *Controller) CancelAll() {
	c.cancelMatching(func(*entry) bool { return true })
}

// CancelNonEssential cancels operations not submitted with Essential().
func (c *Controller) CancelNonEssential() {
	c.cancelMatching(func(e *entry) bool {
		return !e.essential
	})
}

func (c *Controller) cancelMatching(match func(*entry) bool) {
	c.mu.Lock()
	var victims []*entry
	for id, e := range c.ops {
		if match(e) {
			victims = append(victims, e)
			delete(c.ops, id)
		}
	}
	c.mu.Unlock()

	for _, e := range victims {
		e.cancel(ErrCancelled)
	}
	if n := int64(len(victims)); n > 0 {
		c.cancelled.Add(n)
		metrics.TasksCancelled.Add(float64(n))
	}
}

// IsActive reports whether an operation under id is registered.
func (c *Controller) IsActive(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ops[id]
	return ok
}

// ActiveCount returns the number of registered operations.
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ops)
}

// ActiveIDs returns the registered ids, sorted.
func (c *Controller) ActiveIDs() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.ops))
	for id := range c.ops {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Stats returns the current counter values.
func (c *Controller) Stats() Stats {
	return Stats{
		Submitted: c.submitted.Load(),
		Failed:    c.failed.Load(),
		Cancelled: c.cancelled.Load(),
	}
}

// ResetStats zeroes the counters.
func (c *Controller) ResetStats() {
	c.submitted.Store(0)
	c.failed.Store(0)
	c.cancelled.Store(0)
}
