package guard

import "sync"

// Recorder keeps per-kind counts of guard interventions. Counts are cleared
// by the crash-state cleanup path.
type Recorder struct {
	mu     sync.Mutex
	counts map[Kind]int64
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{counts: make(map[Kind]int64)}
}

// Record increments the count for kind.
func (r *Recorder) Record(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[kind]++
}

// Count returns the count for kind.
func (r *Recorder) Count(kind Kind) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[kind]
}

// Total returns the sum of all counts.
func (r *Recorder) Total() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, c := range r.counts {
		total += c
	}
	return total
}

// Snapshot returns a copy of the counts.
func (r *Recorder) Snapshot() map[Kind]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[Kind]int64, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Reset clears all counts.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts = make(map[Kind]int64)
}
