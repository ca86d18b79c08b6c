package watchdog

import "sync"

// Prober schedules a function on the primary execution context. The
// watchdog hands it an acknowledgment closure each probe cycle; a healthy
// context runs the closure promptly, a stalled one never does.
type Prober interface {
	Probe(ack func())
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ack func())

// Probe implements Prober.
func (f ProberFunc) Probe(ack func()) {
	f(ack)
}

// Loop is a serialized execution context backed by a single goroutine. It
// stands in for the host's primary context in headless deployments: work
// posted to it runs in order, and anything that blocks the loop stalls
// probe acknowledgment exactly like a wedged UI thread would.
type Loop struct {
	mu     sync.Mutex
	ch     chan func()
	closed bool
}

// NewLoop creates and starts a serialized execution loop.
func NewLoop() *Loop {
	l := &Loop{ch: make(chan func(), 64)}
	go func() {
		for fn := range l.ch {
			fn()
		}
	}()
	return l
}

// Post schedules fn on the loop. Posts to a closed loop are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.ch <- fn:
	default:
		// Backlogged loop. Dropping is fine for probes: the missed
		// acknowledgment is precisely the signal being measured.
	}
}

// Probe implements Prober.
func (l *Loop) Probe(ack func()) {
	l.Post(ack)
}

// Close stops the loop. Pending work still drains.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.ch)
}
