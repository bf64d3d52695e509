package task

import (
	"errors"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
)

// ErrNilTask is reported when a FlatMap mapper returns a nil Task.
var ErrNilTask = errors.New("task: mapper returned nil task")

// Map transforms the success value. A mapper error or panic fails the
// execution instead.
func Map[T, U any](t *Task[T], mapper func(T) (U, error)) *Task[U] {
	return Create(func(downstream Consumer[U]) cancel.Cancellable {
		return t.onStart(Funcs[T]{
			Success: func(v T) {
				var (
					mapped U
					err    error
				)
				if perr := fault.Catch(func() { mapped, err = mapper(v) }); perr != nil {
					err = perr
				}
				if err != nil {
					downstream.OnError(err)
					return
				}
				downstream.OnSuccess(mapped)
			},
			Error: downstream.OnError,
		})
	})
}

// DoOnStart runs action each time the task is started, before the start
// function.
func (t *Task[T]) DoOnStart(action func()) *Task[T] {
	return Create(func(downstream Consumer[T]) cancel.Cancellable {
		action()
		return t.onStart(downstream)
	})
}

// DoOnSuccess runs action before the value is delivered. A panicking action
// fails the execution.
func (t *Task[T]) DoOnSuccess(action func(T)) *Task[T] {
	return t.doOnTerminate(action, nil)
}

// DoOnError runs action before the error is delivered. A panic raised by
// action is merged with the original error.
func (t *Task[T]) DoOnError(action func(error)) *Task[T] {
	return t.doOnTerminate(nil, action)
}

// DoOnTerminate runs action before either outcome is delivered.
func (t *Task[T]) DoOnTerminate(action func()) *Task[T] {
	return t.doOnTerminate(func(T) { action() }, func(error) { action() })
}

func (t *Task[T]) doOnTerminate(onSuccess func(T), onError func(error)) *Task[T] {
	return Create(func(downstream Consumer[T]) cancel.Cancellable {
		return t.onStart(Funcs[T]{
			Success: func(v T) {
				if onSuccess != nil {
					if err := fault.Catch(func() { onSuccess(v) }); err != nil {
						downstream.OnError(err)
						return
					}
				}
				downstream.OnSuccess(v)
			},
			Error: func(err error) {
				if onError != nil {
					if herr := fault.Catch(func() { onError(err) }); herr != nil {
						downstream.OnError(fault.Merge(err, herr))
						return
					}
				}
				downstream.OnError(err)
			},
		})
	})
}

// DoOnCancel runs action the first time the execution is cancelled.
func (t *Task[T]) DoOnCancel(action func()) *Task[T] {
	return Create(func(downstream Consumer[T]) cancel.Cancellable {
		upstream := t.onStart(downstream)
		return cancel.Func(func() error {
			herr := fault.Catch(action)
			var err error
			if upstream != nil {
				err = upstream.Cancel()
			}
			return fault.Merge(herr, err)
		})
	})
}
