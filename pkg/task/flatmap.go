package task

import (
	"sync"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
)

// FlatMap starts the task produced by mapper from the success value of t.
// Cancelling before that task exists cancels t; cancelling afterwards
// cancels only the second task.
func FlatMap[T, U any](t *Task[T], mapper func(T) (*Task[U], error)) *Task[U] {
	return Create(func(downstream Consumer[U]) cancel.Cancellable {
		e := &flatMapEmitter[T, U]{mapper: mapper, downstream: downstream}
		return e.start(t)
	})
}

type flatMapEmitter[T, U any] struct {
	mapper     func(T) (*Task[U], error)
	downstream Consumer[U]

	// mu orders producing the second task against Cancel. It is never held
	// while user code or a start function runs.
	mu        sync.Mutex
	current   cancel.Cancellable
	produced  bool
	cancelled bool
}

func (e *flatMapEmitter[T, U]) start(first *Task[T]) cancel.Cancellable {
	handle := first.StartFuncs(e.next, e.downstream.OnError)

	e.mu.Lock()
	// The first task may already have succeeded inside StartFuncs, in which
	// case it no longer needs cancelling.
	if e.produced {
		e.mu.Unlock()
		return e
	}
	if e.cancelled {
		e.mu.Unlock()
		_ = handle.Cancel()
		return e
	}
	e.current = handle
	e.mu.Unlock()
	return e
}

func (e *flatMapEmitter[T, U]) next(value T) {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return
	}
	e.produced = true
	e.current = nil
	e.mu.Unlock()

	var (
		second *Task[U]
		err    error
	)
	if perr := fault.Catch(func() { second, err = e.mapper(value) }); perr != nil {
		err = perr
	}
	if err == nil && second == nil {
		err = ErrNilTask
	}
	if err != nil {
		e.downstream.OnError(err)
		return
	}

	// Cancel may have returned while the mapper ran.
	e.mu.Lock()
	cancelled := e.cancelled
	e.mu.Unlock()
	if cancelled {
		return
	}

	handle := second.StartWith(e.downstream)

	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		_ = handle.Cancel()
		return
	}
	e.current = handle
	e.mu.Unlock()
}

func (e *flatMapEmitter[T, U]) Cancel() error {
	e.mu.Lock()
	if e.cancelled {
		e.mu.Unlock()
		return nil
	}
	e.cancelled = true
	current := e.current
	e.current = nil
	e.mu.Unlock()

	if current != nil {
		return current.Cancel()
	}
	return nil
}
