package bus

import (
	"sync"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
)

// operatorConsumer is the upstream side of one operator subscription. Terminal
// events pass straight through; fail terminates the downstream and detaches
// from upstream.
type operatorConsumer[T, U any] struct {
	downstream CompletableConsumer[U]
	upstream   *cancel.Serial
	onEvent    func(T)
}

func (o *operatorConsumer[T, U]) OnEvent(event T) { o.onEvent(event) }
func (o *operatorConsumer[T, U]) OnError(err error) { o.downstream.OnError(err) }
func (o *operatorConsumer[T, U]) OnComplete()       { o.downstream.OnComplete() }

func (o *operatorConsumer[T, U]) fail(err error) {
	o.downstream.OnError(err)
	_ = o.upstream.Cancel()
}

// lift derives a listen function from upstream. wire receives the downstream
// consumer and a failure callback and returns the per-subscription event
// handler.
func lift[T, U any](upstream OnListen[T], wire func(downstream CompletableConsumer[U], fail func(error)) func(T)) OnListen[U] {
	return func(downstream CompletableConsumer[U]) cancel.Cancellable {
		o := &operatorConsumer[T, U]{
			downstream: newSafeConsumer(downstream),
			upstream:   cancel.NewSerial(),
		}
		o.onEvent = wire(o.downstream, o.fail)
		_ = o.upstream.Set(upstream(o))
		return o.upstream
	}
}

// Map transforms each event with mapper. A mapper error or panic terminates
// the subscription with that error.
func Map[T, U any](b *Bus[T], mapper func(T) (U, error)) *Bus[U] {
	return &Bus[U]{listen: mapListen(b.listen, mapper)}
}

// MapCompletable is Map for completable streams.
func MapCompletable[T, U any](c *Completable[T], mapper func(T) (U, error)) *Completable[U] {
	return &Completable[U]{listen: mapListen(c.listen, mapper)}
}

func mapListen[T, U any](upstream OnListen[T], mapper func(T) (U, error)) OnListen[U] {
	return lift(upstream, func(downstream CompletableConsumer[U], fail func(error)) func(T) {
		return func(event T) {
			var (
				mapped U
				err    error
			)
			if perr := fault.Catch(func() { mapped, err = mapper(event) }); perr != nil {
				err = perr
			}
			if err != nil {
				fail(err)
				return
			}
			downstream.OnEvent(mapped)
		}
	})
}

// Filter drops events for which predicate returns false. A panicking
// predicate terminates the subscription.
func Filter[T any](b *Bus[T], predicate func(T) bool) *Bus[T] {
	return &Bus[T]{listen: filterListen(b.listen, predicate)}
}

// FilterCompletable is Filter for completable streams.
func FilterCompletable[T any](c *Completable[T], predicate func(T) bool) *Completable[T] {
	return &Completable[T]{listen: filterListen(c.listen, predicate)}
}

func filterListen[T any](upstream OnListen[T], predicate func(T) bool) OnListen[T] {
	return lift(upstream, func(downstream CompletableConsumer[T], fail func(error)) func(T) {
		return func(event T) {
			var keep bool
			if err := fault.Catch(func() { keep = predicate(event) }); err != nil {
				fail(err)
				return
			}
			if keep {
				downstream.OnEvent(event)
			}
		}
	})
}

// DoOnEvent runs action before each event is delivered downstream.
func DoOnEvent[T any](b *Bus[T], action func(T)) *Bus[T] {
	return &Bus[T]{listen: doOnEventListen(b.listen, action)}
}

// DoOnEventCompletable is DoOnEvent for completable streams.
func DoOnEventCompletable[T any](c *Completable[T], action func(T)) *Completable[T] {
	return &Completable[T]{listen: doOnEventListen(c.listen, action)}
}

func doOnEventListen[T any](upstream OnListen[T], action func(T)) OnListen[T] {
	return lift(upstream, func(downstream CompletableConsumer[T], fail func(error)) func(T) {
		return func(event T) {
			if err := fault.Catch(func() { action(event) }); err != nil {
				fail(err)
				return
			}
			downstream.OnEvent(event)
		}
	})
}

// DistinctUntilChanged drops events equal to the one before them. Only
// adjacent events are compared, and each subscription keeps its own state.
func DistinctUntilChanged[T comparable](b *Bus[T]) *Bus[T] {
	return &Bus[T]{listen: distinctListen(b.listen, identity[T], equal[T])}
}

// DistinctUntilChangedCompletable is DistinctUntilChanged for completable
// streams.
func DistinctUntilChangedCompletable[T comparable](c *Completable[T]) *Completable[T] {
	return &Completable[T]{listen: distinctListen(c.listen, identity[T], equal[T])}
}

// DistinctUntilChangedBy compares the keys derived by key instead of the
// events themselves.
func DistinctUntilChangedBy[T any, K comparable](b *Bus[T], key func(T) K) *Bus[T] {
	return &Bus[T]{listen: distinctListen(b.listen, key, equal[K])}
}

// DistinctUntilChangedByCompletable is DistinctUntilChangedBy for completable
// streams.
func DistinctUntilChangedByCompletable[T any, K comparable](c *Completable[T], key func(T) K) *Completable[T] {
	return &Completable[T]{listen: distinctListen(c.listen, key, equal[K])}
}

// DistinctUntilChangedFunc compares adjacent events with same.
func DistinctUntilChangedFunc[T any](b *Bus[T], same func(prev, cur T) bool) *Bus[T] {
	return &Bus[T]{listen: distinctListen(b.listen, identity[T], same)}
}

// DistinctUntilChangedFuncCompletable is DistinctUntilChangedFunc for
// completable streams.
func DistinctUntilChangedFuncCompletable[T any](c *Completable[T], same func(prev, cur T) bool) *Completable[T] {
	return &Completable[T]{listen: distinctListen(c.listen, identity[T], same)}
}

func identity[T any](v T) T { return v }

func equal[T comparable](a, b T) bool { return a == b }

func distinctListen[T, K any](upstream OnListen[T], key func(T) K, same func(K, K) bool) OnListen[T] {
	return lift(upstream, func(downstream CompletableConsumer[T], fail func(error)) func(T) {
		var (
			mu      sync.Mutex
			prev    K
			hasPrev bool
		)
		return func(event T) {
			var changed bool
			err := fault.Catch(func() {
				cur := key(event)
				mu.Lock()
				defer mu.Unlock()
				changed = !hasPrev || !same(prev, cur)
				prev, hasPrev = cur, true
			})
			if err != nil {
				fail(err)
				return
			}
			if changed {
				downstream.OnEvent(event)
			}
		}
	})
}
