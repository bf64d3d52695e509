package bus

import (
	"sync/atomic"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
)

// Consumer receives the events of an endless Bus.
type Consumer[T any] interface {
	OnEvent(event T)
}

// CompletableConsumer receives events followed by at most one terminal event.
type CompletableConsumer[T any] interface {
	Consumer[T]
	OnError(err error)
	OnComplete()
}

// OnListen wires a consumer to a source and returns the handle that detaches it.
type OnListen[T any] func(consumer CompletableConsumer[T]) cancel.Cancellable

// ConsumerFunc adapts a function to the Consumer interface.
type ConsumerFunc[T any] func(event T)

// OnEvent implements Consumer.
func (f ConsumerFunc[T]) OnEvent(event T) { f(event) }

// CompletableFuncs adapts callbacks to the CompletableConsumer interface.
// A nil Complete is ignored. A nil Error turns any error into a panic with
// *fault.NotImplementedError.
type CompletableFuncs[T any] struct {
	Event    func(event T)
	Error    func(err error)
	Complete func()
}

// OnEvent implements Consumer.
func (f CompletableFuncs[T]) OnEvent(event T) {
	if f.Event != nil {
		f.Event(event)
	}
}

// OnError implements CompletableConsumer.
func (f CompletableFuncs[T]) OnError(err error) {
	if f.Error == nil {
		panic(&fault.NotImplementedError{Err: err})
	}
	f.Error(err)
}

// OnComplete implements CompletableConsumer.
func (f CompletableFuncs[T]) OnComplete() {
	if f.Complete != nil {
		f.Complete()
	}
}

// safeConsumer lets at most one terminal event through and drops events
// after it.
type safeConsumer[T any] struct {
	consumer CompletableConsumer[T]
	done     atomic.Bool
}

func newSafeConsumer[T any](c CompletableConsumer[T]) *safeConsumer[T] {
	if sc, ok := c.(*safeConsumer[T]); ok {
		return sc
	}
	return &safeConsumer[T]{consumer: c}
}

func (s *safeConsumer[T]) OnEvent(event T) {
	if !s.done.Load() {
		s.consumer.OnEvent(event)
	}
}

func (s *safeConsumer[T]) OnError(err error) {
	if s.done.CompareAndSwap(false, true) {
		s.consumer.OnError(err)
	}
}

func (s *safeConsumer[T]) OnComplete() {
	if s.done.CompareAndSwap(false, true) {
		s.consumer.OnComplete()
	}
}

// endlessConsumer adapts an event-only consumer to the completable protocol.
// A terminal event reaching it is a contract violation.
type endlessConsumer[T any] struct {
	consumer Consumer[T]
}

func (e endlessConsumer[T]) OnEvent(event T) { e.consumer.OnEvent(event) }

func (e endlessConsumer[T]) OnError(err error) {
	panic(&fault.EndlessBusError{Err: err})
}

func (e endlessConsumer[T]) OnComplete() {
	panic(&fault.EndlessBusError{})
}
