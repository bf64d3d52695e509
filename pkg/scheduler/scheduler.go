// Package scheduler defines where and when reactive actions run.
//
// The core types only consume the Scheduler capability. This package also
// ships the concrete schedulers used by applications and tests:
//
//   - Immediate runs actions synchronously on the caller's goroutine
//   - NewGoroutine runs each action on a fresh goroutine
//   - Pool runs actions on a fixed set of workers draining an unbounded FIFO queue
//   - Manual queues actions until the owner drains them, for deterministic tests
//   - NewRateLimited delays another scheduler's actions with a token bucket
package scheduler

import (
	"sync/atomic"

	"github.com/goclaw/reactive/pkg/cancel"
)

// Scheduler runs actions. Schedule must return promptly. Cancelling the
// returned handle before the action starts prevents it from running; it has
// no defined effect on an action that is already running.
type Scheduler interface {
	Schedule(action func()) cancel.Cancellable
}

// Func adapts a function to the Scheduler interface.
type Func func(action func()) cancel.Cancellable

// Schedule implements Scheduler.
func (f Func) Schedule(action func()) cancel.Cancellable {
	return f(action)
}

type immediate struct{}

func (immediate) Schedule(action func()) cancel.Cancellable {
	action()
	return cancel.Empty()
}

// Immediate returns a Scheduler that runs each action before Schedule returns.
func Immediate() Scheduler { return immediate{} }

type goroutineScheduler struct {
	name string
}

// NewGoroutine returns a Scheduler that starts one goroutine per action.
func NewGoroutine() Scheduler { return &goroutineScheduler{name: "goroutine"} }

func (g *goroutineScheduler) Schedule(action func()) cancel.Cancellable {
	job := newJob(action)
	metricsRecorder().RecordScheduled(g.name)
	go job.run(g.name)
	return job
}

// job is one scheduled action. Cancel only wins if it happens before run.
type job struct {
	action func()
	state  atomic.Int32
}

const (
	jobPending int32 = iota
	jobRunning
	jobCancelled
)

func newJob(action func()) *job {
	return &job{action: action}
}

func (j *job) Cancel() error {
	if j.state.CompareAndSwap(jobPending, jobCancelled) {
		j.action = nil
	}
	return nil
}

func (j *job) cancelled() bool { return j.state.Load() == jobCancelled }

// run executes the action unless it was cancelled first. Panics are recovered
// so a failing action cannot take the executing goroutine down.
func (j *job) run(name string) {
	if !j.state.CompareAndSwap(jobPending, jobRunning) {
		metricsRecorder().RecordCancelled(name)
		return
	}
	defer metricsRecorder().RecordExecuted(name)
	runRecovered(name, j.action)
}
