package bus

import (
	"sync"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/scheduler"
)

// ObserveOn delivers events on s. Each subscription owns an unbounded FIFO
// queue drained by at most one scheduled action at a time, so delivery order
// matches emission order.
func ObserveOn[T any](b *Bus[T], s scheduler.Scheduler) *Bus[T] {
	return &Bus[T]{listen: observeOnListen(b.listen, s)}
}

// ObserveOnCompletable is ObserveOn for completable streams.
func ObserveOnCompletable[T any](c *Completable[T], s scheduler.Scheduler) *Completable[T] {
	return &Completable[T]{listen: observeOnListen(c.listen, s)}
}

func observeOnListen[T any](upstream OnListen[T], s scheduler.Scheduler) OnListen[T] {
	return func(downstream CompletableConsumer[T]) cancel.Cancellable {
		o := &observeOnConsumer[T]{
			scheduler:  s,
			downstream: newSafeConsumer(downstream),
			upstream:   cancel.NewSerial(),
		}
		_ = o.upstream.Set(upstream(o))
		return o
	}
}

type observeOnConsumer[T any] struct {
	scheduler  scheduler.Scheduler
	downstream CompletableConsumer[T]
	upstream   *cancel.Serial

	mu        sync.Mutex
	queue     []func()
	scheduled bool
	done      bool
	drainGen  uint64
	drain     cancel.Cancellable
}

func (o *observeOnConsumer[T]) OnEvent(event T) {
	o.enqueue(func() { o.sendEvent(event) })
}

func (o *observeOnConsumer[T]) OnError(err error) {
	o.enqueue(func() { deliverError(o.downstream, err) })
}

func (o *observeOnConsumer[T]) OnComplete() {
	o.enqueue(func() { deliverComplete(o.downstream) })
}

func (o *observeOnConsumer[T]) sendEvent(event T) {
	err := fault.Catch(func() { o.downstream.OnEvent(event) })
	if err == nil {
		return
	}
	o.mu.Lock()
	o.done = true
	o.queue = nil
	o.mu.Unlock()

	deliverError(o.downstream, err)
	_ = o.upstream.Cancel()
}

func (o *observeOnConsumer[T]) enqueue(action func()) {
	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, action)
	if o.scheduled {
		o.mu.Unlock()
		return
	}
	o.scheduled = true
	o.drainGen++
	gen := o.drainGen
	o.mu.Unlock()

	// Schedule may run the drain synchronously, so it is called unlocked.
	handle := o.scheduler.Schedule(o.run)

	o.mu.Lock()
	if o.done {
		o.mu.Unlock()
		_ = handle.Cancel()
		return
	}
	if o.drainGen == gen {
		o.drain = handle
	}
	o.mu.Unlock()
}

func (o *observeOnConsumer[T]) run() {
	for {
		o.mu.Lock()
		if o.done || len(o.queue) == 0 {
			o.queue = nil
			o.scheduled = false
			o.mu.Unlock()
			return
		}
		action := o.queue[0]
		o.queue[0] = nil
		o.queue = o.queue[1:]
		o.mu.Unlock()

		action()
	}
}

// Cancel detaches from upstream and discards every action not yet run.
func (o *observeOnConsumer[T]) Cancel() error {
	upErr := o.upstream.Cancel()

	o.mu.Lock()
	o.done = true
	o.queue = nil
	o.scheduled = false
	drain := o.drain
	o.drain = nil
	o.mu.Unlock()

	var drainErr error
	if drain != nil {
		drainErr = drain.Cancel()
	}
	return fault.Merge(upErr, drainErr)
}
