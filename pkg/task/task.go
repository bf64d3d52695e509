// Package task provides cold, single-shot asynchronous computations.
//
// A Task holds only its start function. Every Start call runs a fresh,
// independent execution that delivers exactly one success or error and can
// be cancelled through the returned handle.
package task

import (
	"context"
	"sync/atomic"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
)

// Consumer receives the outcome of one execution.
type Consumer[T any] interface {
	OnSuccess(value T)
	OnError(err error)
}

// AsyncConsumer is handed to scheduled start functions, which register the
// handle that stops their work through SetOnCancelled.
type AsyncConsumer[T any] interface {
	Consumer[T]
	SetOnCancelled(c cancel.Cancellable)
}

// OnStart wires a consumer to a new execution.
type OnStart[T any] func(consumer Consumer[T]) cancel.Cancellable

// OnStartAsync is a start function run by a scheduler.
type OnStartAsync[T any] func(consumer AsyncConsumer[T])

// Funcs adapts callbacks to the Consumer interface. A nil Success ignores
// the value; a nil Error turns any error into a panic with
// *fault.NotImplementedError.
type Funcs[T any] struct {
	Success func(value T)
	Error   func(err error)
}

// OnSuccess implements Consumer.
func (f Funcs[T]) OnSuccess(value T) {
	if f.Success != nil {
		f.Success(value)
	}
}

// OnError implements Consumer.
func (f Funcs[T]) OnError(err error) {
	if f.Error == nil {
		panic(&fault.NotImplementedError{Err: err})
	}
	f.Error(err)
}

// Task is a cold computation.
type Task[T any] struct {
	onStart OnStart[T]
}

// Create builds a Task from its start function.
func Create[T any](onStart OnStart[T]) *Task[T] {
	return &Task[T]{onStart: onStart}
}

// Just returns a Task that succeeds with value.
func Just[T any](value T) *Task[T] {
	return Create(func(c Consumer[T]) cancel.Cancellable {
		c.OnSuccess(value)
		return cancel.Empty()
	})
}

// Error returns a Task that fails with err.
func Error[T any](err error) *Task[T] {
	return Create(func(c Consumer[T]) cancel.Cancellable {
		c.OnError(err)
		return cancel.Empty()
	})
}

// Start runs the task and ignores its value. An error panics with
// *fault.NotImplementedError on the goroutine that delivers it.
func (t *Task[T]) Start() cancel.Cancellable {
	return t.StartWith(Funcs[T]{})
}

// StartFunc runs the task with a success callback only. An error panics
// with *fault.NotImplementedError.
func (t *Task[T]) StartFunc(onSuccess func(T)) cancel.Cancellable {
	return t.StartWith(Funcs[T]{Success: onSuccess})
}

// StartFuncs runs the task with both callbacks.
func (t *Task[T]) StartFuncs(onSuccess func(T), onError func(error)) cancel.Cancellable {
	return t.StartWith(Funcs[T]{Success: onSuccess, Error: onError})
}

// StartWith runs the task and delivers its outcome to consumer at most once.
// A panic escaping the start function becomes the execution's error.
func (t *Task[T]) StartWith(consumer Consumer[T]) cancel.Cancellable {
	sc := newSafeConsumer(consumer)
	var handle cancel.Cancellable
	if err := fault.Catch(func() { handle = t.onStart(sc) }); err != nil {
		sc.OnError(err)
		return cancel.Empty()
	}
	if handle == nil {
		return cancel.Empty()
	}
	return handle
}

// Await starts the task and blocks until it delivers or ctx is done. When
// ctx ends first the execution is cancelled and ctx.Err() is returned. A
// failed execution is reported as *fault.ExecutionError.
func (t *Task[T]) Await(ctx context.Context) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	handle := t.StartFuncs(
		func(v T) { done <- result{value: v} },
		func(err error) { done <- result{err: err} },
	)

	var zero T
	select {
	case r := <-done:
		if r.err != nil {
			return zero, &fault.ExecutionError{Err: r.err}
		}
		return r.value, nil
	case <-ctx.Done():
		_ = handle.Cancel()
		return zero, ctx.Err()
	}
}

type consumerRef[T any] struct {
	consumer Consumer[T]
}

// safeConsumer hands the first outcome to the wrapped consumer and releases
// it. An error arriving afterwards goes to the fallback handler.
type safeConsumer[T any] struct {
	ref atomic.Pointer[consumerRef[T]]
}

func newSafeConsumer[T any](c Consumer[T]) *safeConsumer[T] {
	sc := &safeConsumer[T]{}
	sc.ref.Store(&consumerRef[T]{consumer: c})
	return sc
}

func (s *safeConsumer[T]) OnSuccess(value T) {
	if ref := s.ref.Swap(nil); ref != nil {
		ref.consumer.OnSuccess(value)
	}
}

func (s *safeConsumer[T]) OnError(err error) {
	ref := s.ref.Swap(nil)
	if ref == nil {
		fault.Handle(&fault.UndeliveredError{Err: err})
		return
	}
	ref.consumer.OnError(err)
}
