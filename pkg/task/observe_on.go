package task

import (
	"sync"
	"sync/atomic"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/scheduler"
)

// ObserveOn delivers the outcome on s. Nothing is delivered once the
// execution is cancelled, even when the delivery was already scheduled.
func (t *Task[T]) ObserveOn(s scheduler.Scheduler) *Task[T] {
	return Create(func(downstream Consumer[T]) cancel.Cancellable {
		e := &observeOnEmitter[T]{scheduler: s, downstream: downstream, upstream: cancel.NewSerial()}
		_ = e.upstream.Set(t.onStart(e))
		return e
	})
}

type observeOnEmitter[T any] struct {
	scheduler  scheduler.Scheduler
	downstream Consumer[T]
	upstream   *cancel.Serial

	cancelled atomic.Bool
	mu        sync.Mutex
	delivery  cancel.Cancellable
}

func (e *observeOnEmitter[T]) OnSuccess(value T) {
	e.schedule(func() {
		if err := fault.Catch(func() { e.downstream.OnSuccess(value) }); err != nil {
			e.deliverError(err)
		}
	})
}

func (e *observeOnEmitter[T]) OnError(err error) {
	e.schedule(func() { e.deliverError(err) })
}

func (e *observeOnEmitter[T]) deliverError(err error) {
	if herr := fault.Catch(func() { e.downstream.OnError(err) }); herr != nil {
		fault.Handle(fault.Merge(err, herr))
	}
}

func (e *observeOnEmitter[T]) schedule(deliver func()) {
	if e.cancelled.Load() {
		return
	}
	handle := e.scheduler.Schedule(func() {
		if !e.cancelled.Load() {
			deliver()
		}
	})

	e.mu.Lock()
	if e.cancelled.Load() {
		e.mu.Unlock()
		_ = handle.Cancel()
		return
	}
	e.delivery = handle
	e.mu.Unlock()
}

// Cancel stops upstream and any pending delivery.
func (e *observeOnEmitter[T]) Cancel() error {
	if !e.cancelled.CompareAndSwap(false, true) {
		return nil
	}
	e.mu.Lock()
	delivery := e.delivery
	e.delivery = nil
	e.mu.Unlock()

	upErr := e.upstream.Cancel()
	if delivery != nil {
		return fault.Merge(upErr, delivery.Cancel())
	}
	return upErr
}
