// Package dlq implements the bounded dead-letter sink spec.md §4.7
// describes: a job that has exhausted its retry budget is held here
// rather than discarded, so an operator can inspect and manually retry
// it. Grounded on the teacher's publishing queue dead-letter sink (a
// capacity-bounded, oldest-evicted in-memory queue protecting against
// unbounded growth when a downstream stays broken) — adapted from a
// message-publishing queue to a sync-job queue.
package dlq

import (
	"sync"
	"time"

	"github.com/sheetsync/sheetsync/internal/core"
)

// DefaultCapacity bounds the sink so a persistently broken target or
// spreadsheet can't grow the process's memory without limit.
const DefaultCapacity = 1000

// Job is one dead-lettered sync attempt.
type Job struct {
	ConfigID    string
	Direction   core.Direction
	Reason      string
	FailedAt    time.Time
	Attempts    int
	LastError   string
}

// Sink is a capacity-bounded, FIFO, oldest-evicted in-memory dead-letter
// queue. Safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	capacity int
	jobs     []Job
	dropped  int64
}

// New creates a Sink bounded at capacity. A non-positive capacity falls
// back to DefaultCapacity.
func New(capacity int) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Sink{capacity: capacity}
}

// Push enqueues job, evicting the oldest entry if the sink is full.
func (s *Sink) Push(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.jobs) >= s.capacity {
		s.jobs = s.jobs[1:]
		s.dropped++
	}
	s.jobs = append(s.jobs, job)
}

// List returns a snapshot of every held job, oldest first.
func (s *Sink) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// Len returns the current depth, for MetricSink.SetDLQDepth.
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Dropped returns the number of jobs evicted due to capacity pressure
// since the sink was created.
func (s *Sink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Remove deletes the job at index i (as returned by List), for an
// operator-triggered manual retry. Reports false if i is out of range.
func (s *Sink) Remove(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i < 0 || i >= len(s.jobs) {
		return false
	}
	s.jobs = append(s.jobs[:i], s.jobs[i+1:]...)
	return true
}
