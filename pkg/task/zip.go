package task

import (
	"sync"
	"sync/atomic"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
)

// Zip runs a and b concurrently and combines their values with zipper. The
// first error from either side fails the result. A value the other side
// delivers afterwards is discarded; an error goes to the fallback handler as
// *fault.UndeliveredError.
func Zip[A, B, R any](a *Task[A], b *Task[B], zipper func(A, B) (R, error)) *Task[R] {
	return Create(func(downstream Consumer[R]) cancel.Cancellable {
		e := &zipEmitter[A, B, R]{zipper: zipper, downstream: downstream}
		e.remaining.Store(2)
		return e.start(a, b)
	})
}

type zipEmitter[A, B, R any] struct {
	zipper     func(A, B) (R, error)
	downstream Consumer[R]

	a A
	b B

	remaining atomic.Int32
	failed    atomic.Bool

	mu      sync.Mutex
	handles []cancel.Cancellable
}

func (e *zipEmitter[A, B, R]) start(a *Task[A], b *Task[B]) cancel.Cancellable {
	ha := a.StartFuncs(func(v A) {
		e.a = v
		e.finish()
	}, e.fail)
	hb := b.StartFuncs(func(v B) {
		e.b = v
		e.finish()
	}, e.fail)

	e.mu.Lock()
	e.handles = []cancel.Cancellable{ha, hb}
	e.mu.Unlock()
	return e
}

// finish zips once both sides succeeded. The atomic decrement orders the
// writes of a and b before the read by whichever side finishes last.
func (e *zipEmitter[A, B, R]) finish() {
	if e.remaining.Add(-1) > 0 {
		return
	}
	var (
		zipped R
		err    error
	)
	if perr := fault.Catch(func() { zipped, err = e.zipper(e.a, e.b) }); perr != nil {
		err = perr
	}
	if err != nil {
		e.fail(err)
		return
	}
	if !e.failed.Load() {
		e.downstream.OnSuccess(zipped)
	}
}

// fail delivers the first error. A later one has no consumer left and goes
// to the fallback handler.
func (e *zipEmitter[A, B, R]) fail(err error) {
	if e.failed.CompareAndSwap(false, true) {
		e.downstream.OnError(err)
		return
	}
	fault.Handle(&fault.UndeliveredError{Err: err})
}

// Cancel cancels both sides and merges whatever they report.
func (e *zipEmitter[A, B, R]) Cancel() error {
	e.mu.Lock()
	handles := e.handles
	e.handles = nil
	e.mu.Unlock()

	errs := make([]error, 0, len(handles))
	for _, h := range handles {
		errs = append(errs, h.Cancel())
	}
	return fault.Merge(errs...)
}
