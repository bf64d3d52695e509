// Package bus provides hot, multicast event streams that replay their latest
// event to new listeners.
//
// A Completable may terminate with an error or a completion. A Bus is the
// endless view: it promises never to terminate, and a terminal event that
// reaches one of its listeners panics with *fault.EndlessBusError at the
// emission site. Dispatchers are the producer side of both views; operators
// such as Map, Filter and ObserveOn derive new views from existing ones.
package bus

import (
	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
)

// Bus is an endless event stream.
type Bus[T any] struct {
	listen OnListen[T]
}

// Create builds a Bus from a function that wires an event-only consumer.
func Create[T any](onListen func(consumer Consumer[T]) cancel.Cancellable) *Bus[T] {
	return &Bus[T]{listen: func(c CompletableConsumer[T]) cancel.Cancellable {
		return onListen(c)
	}}
}

// Listen registers consumer and returns the handle that detaches it. A held
// value is delivered before Listen returns.
func (b *Bus[T]) Listen(consumer Consumer[T]) cancel.Cancellable {
	return listenSafely(b.listen, newSafeConsumer[T](endlessConsumer[T]{consumer: consumer}))
}

// ListenFunc registers fn as the event callback.
func (b *Bus[T]) ListenFunc(fn func(event T)) cancel.Cancellable {
	return b.Listen(ConsumerFunc[T](fn))
}

// Completable is an event stream that ends with at most one error or
// completion.
type Completable[T any] struct {
	listen OnListen[T]
}

// NewCompletable builds a Completable from a listen function.
func NewCompletable[T any](onListen OnListen[T]) *Completable[T] {
	return &Completable[T]{listen: onListen}
}

// Completed returns a Completable that completes every listener immediately.
func Completed[T any]() *Completable[T] {
	d := NewCompletableDispatcher[T]()
	d.OnComplete()
	return d.Completable
}

// Listen registers consumer and returns the handle that detaches it.
func (c *Completable[T]) Listen(consumer CompletableConsumer[T]) cancel.Cancellable {
	return listenSafely(c.listen, newSafeConsumer(consumer))
}

// ListenFuncs registers callbacks. onComplete may be nil; a nil onError makes
// any error panic with *fault.NotImplementedError.
func (c *Completable[T]) ListenFuncs(onEvent func(T), onError func(error), onComplete func()) cancel.Cancellable {
	return c.Listen(CompletableFuncs[T]{Event: onEvent, Error: onError, Complete: onComplete})
}

// listenSafely turns a panic escaping the listen function into an error for
// the consumer that was being registered.
func listenSafely[T any](onListen OnListen[T], consumer CompletableConsumer[T]) cancel.Cancellable {
	var handle cancel.Cancellable
	if err := fault.Catch(func() { handle = onListen(consumer) }); err != nil {
		deliverError(consumer, err)
		return cancel.Empty()
	}
	if handle == nil {
		return cancel.Empty()
	}
	return handle
}

// Concat returns a Bus that delivers value to each new listener before
// delegating to b.
func Concat[T any](value T, b *Bus[T]) *Bus[T] {
	return &Bus[T]{listen: concatListen(value, b.listen)}
}

// ConcatCompletable is Concat for completable streams.
func ConcatCompletable[T any](value T, c *Completable[T]) *Completable[T] {
	return &Completable[T]{listen: concatListen(value, c.listen)}
}

func concatListen[T any](value T, upstream OnListen[T]) OnListen[T] {
	return func(c CompletableConsumer[T]) cancel.Cancellable {
		c.OnEvent(value)
		return upstream(c)
	}
}
