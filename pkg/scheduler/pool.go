package scheduler

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/logger"
)

// Pool is a Scheduler backed by a fixed set of worker goroutines draining an
// unbounded FIFO queue. Schedule never blocks.
type Pool struct {
	name string
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*job
	running bool
	stopped bool

	stopOnce sync.Once
	wg       sync.WaitGroup

	tasksProcessed atomic.Int64
}

// NewPool creates a Pool with size workers. A non-positive size uses
// GOMAXPROCS workers; an empty name gets a generated one.
func NewPool(name string, size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
		if size <= 0 {
			size = 1
		}
	}
	if name == "" {
		name = "pool-" + uuid.NewString()[:8]
	}
	p := &Pool{name: name, size: size}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Name returns the pool name used in logs and metrics.
func (p *Pool) Name() string { return p.name }

// Size returns the number of workers.
func (p *Pool) Size() int { return p.size }

// Start launches the workers. Actions scheduled before Start are kept and
// run once the workers are up.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.stopped {
		return
	}
	p.running = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	logger.Debug("scheduler pool started", "scheduler", p.name, "workers", p.size)
}

// Stop rejects new actions, lets the workers drain what is already queued
// and waits for them to exit.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.running = false
		p.cond.Broadcast()
		p.mu.Unlock()

		p.wg.Wait()
		logger.Debug("scheduler pool stopped", "scheduler", p.name, "processed", p.tasksProcessed.Load())
	})
}

// Schedule enqueues action. After Stop the action is dropped and the
// returned handle is already cancelled.
func (p *Pool) Schedule(action func()) cancel.Cancellable {
	j := newJob(action)

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		_ = j.Cancel()
		metricsRecorder().RecordCancelled(p.name)
		return j
	}
	p.queue = append(p.queue, j)
	depth := len(p.queue)
	p.cond.Signal()
	p.mu.Unlock()

	metricsRecorder().RecordScheduled(p.name)
	metricsRecorder().SetQueueDepth(p.name, depth)
	return j
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		depth := len(p.queue)
		p.mu.Unlock()

		metricsRecorder().SetQueueDepth(p.name, depth)
		j.run(p.name)
		p.tasksProcessed.Add(1)
	}
}

// TasksProcessed returns the number of dequeued actions, cancelled ones included.
func (p *Pool) TasksProcessed() int64 {
	return p.tasksProcessed.Load()
}

// IsRunning returns true between Start and Stop.
func (p *Pool) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
