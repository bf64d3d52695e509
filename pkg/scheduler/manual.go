package scheduler

import (
	"sync"

	"github.com/goclaw/reactive/pkg/cancel"
)

// Manual queues actions until the owner runs them. Actions run on the
// goroutine calling RunNext or RunAll, and their panics are not recovered.
type Manual struct {
	mu    sync.Mutex
	queue []*job
}

// NewManual creates an empty Manual scheduler.
func NewManual() *Manual { return &Manual{} }

// Schedule implements Scheduler.
func (m *Manual) Schedule(action func()) cancel.Cancellable {
	j := newJob(action)
	m.mu.Lock()
	m.queue = append(m.queue, j)
	m.mu.Unlock()
	return j
}

// RunNext runs the oldest pending action and reports whether one ran.
// Cancelled actions are skipped.
func (m *Manual) RunNext() bool {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return false
		}
		j := m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		m.mu.Unlock()

		if j.state.CompareAndSwap(jobPending, jobRunning) {
			j.action()
			return true
		}
	}
}

// RunAll runs actions, including ones scheduled while running, until the
// queue is empty. It returns the number of actions run.
func (m *Manual) RunAll() int {
	n := 0
	for m.RunNext() {
		n++
	}
	return n
}

// Pending returns the number of queued actions that were not cancelled.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, j := range m.queue {
		if !j.cancelled() {
			n++
		}
	}
	return n
}
