package task

import (
	"sync"
	"sync/atomic"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/scheduler"
)

// CreateScheduled builds a Task whose start function runs on s. The start
// function registers its own cancellation through SetOnCancelled; cancelling
// the execution cancels both that handle and the pending schedule.
func CreateScheduled[T any](s scheduler.Scheduler, onStart OnStartAsync[T]) *Task[T] {
	return Create(func(downstream Consumer[T]) cancel.Cancellable {
		a := &scheduleArbiter[T]{onStart: onStart}
		a.downstream.Store(&consumerRef[T]{consumer: downstream})
		return a.start(s)
	})
}

// FromCallable builds a Task that runs fn on s.
func FromCallable[T any](s scheduler.Scheduler, fn func() (T, error)) *Task[T] {
	return CreateScheduled(s, func(c AsyncConsumer[T]) {
		state := cancel.NewStateful()
		c.SetOnCancelled(state)
		if state.IsCancelled() {
			return
		}
		v, err := fn()
		if err != nil {
			c.OnError(err)
			return
		}
		c.OnSuccess(v)
	})
}

type scheduleArbiter[T any] struct {
	onStart    OnStartAsync[T]
	downstream atomic.Pointer[consumerRef[T]]

	cancelled atomic.Bool
	mu        sync.Mutex
	scheduled cancel.Cancellable
	client    cancel.Cancellable
}

func (a *scheduleArbiter[T]) start(s scheduler.Scheduler) cancel.Cancellable {
	handle := s.Schedule(a.run)
	a.mu.Lock()
	a.scheduled = handle
	a.mu.Unlock()
	return a
}

// run executes on the scheduler, so fatal panics go to the fallback handler
// instead of unwinding the scheduler's goroutine.
func (a *scheduleArbiter[T]) run() {
	err := fault.CatchAll(func() { a.onStart(a) })
	if err == nil {
		return
	}
	if fault.IsFatal(err) {
		fault.Handle(err)
		return
	}
	if herr := fault.CatchAll(func() { a.OnError(err) }); herr != nil {
		fault.Handle(fault.Merge(err, herr))
	}
}

func (a *scheduleArbiter[T]) OnSuccess(value T) {
	if ref := a.downstream.Swap(nil); ref != nil {
		ref.consumer.OnSuccess(value)
	}
}

func (a *scheduleArbiter[T]) OnError(err error) {
	if ref := a.downstream.Swap(nil); ref != nil {
		ref.consumer.OnError(err)
	}
}

func (a *scheduleArbiter[T]) SetOnCancelled(c cancel.Cancellable) {
	if c == nil {
		return
	}
	a.mu.Lock()
	if a.cancelled.Load() {
		a.mu.Unlock()
		_ = c.Cancel()
		return
	}
	a.client = c
	a.mu.Unlock()
}

// Cancel withdraws the pending schedule, cancels whatever the start function
// registered and suppresses any later delivery.
func (a *scheduleArbiter[T]) Cancel() error {
	if !a.cancelled.CompareAndSwap(false, true) {
		return nil
	}
	a.downstream.Store(nil)

	a.mu.Lock()
	scheduled, client := a.scheduled, a.client
	a.scheduled, a.client = nil, nil
	a.mu.Unlock()

	var errs []error
	if scheduled != nil {
		errs = append(errs, scheduled.Cancel())
	}
	if client != nil {
		errs = append(errs, client.Cancel())
	}
	return fault.Merge(errs...)
}
