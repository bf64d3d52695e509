package bus

import (
	"sync"
	"sync/atomic"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
)

type listenerEntry[T any] struct {
	consumer *safeConsumer[T]
	removed  atomic.Bool
}

// core is the state shared by both dispatcher flavours. The mutex is never
// held while a listener runs, so listeners may emit, listen and cancel.
type core[T any] struct {
	mu        sync.Mutex
	listeners []*listenerEntry[T] // copy-on-write
	value     T
	hasValue  bool
	err       error
	completed bool
}

func (d *core[T]) done() bool { return d.err != nil || d.completed }

func (d *core[T]) listen(c CompletableConsumer[T]) cancel.Cancellable {
	sc := newSafeConsumer(c)

	d.mu.Lock()
	value, hasValue, err, done := d.value, d.hasValue, d.err, d.done()
	var entry *listenerEntry[T]
	if !done {
		entry = &listenerEntry[T]{consumer: sc}
		next := make([]*listenerEntry[T], len(d.listeners), len(d.listeners)+1)
		copy(next, d.listeners)
		d.listeners = append(next, entry)
	}
	d.mu.Unlock()

	if done {
		if err != nil {
			deliverError(sc, err)
		} else {
			deliverComplete(sc)
		}
		return cancel.Empty()
	}

	metricsRecorder().AddListeners(1)
	handle := cancel.Action(func() { d.remove(entry) })
	if hasValue {
		if err := fault.Catch(func() { sc.OnEvent(value) }); err != nil {
			metricsRecorder().RecordListenerPanic()
			_ = handle.Cancel()
			deliverError(sc, err)
			return cancel.Empty()
		}
	}
	return handle
}

// deliverError hands err to c. A panic raised by c itself cannot reach any
// consumer and goes to the fallback handler together with err.
func deliverError[T any](c CompletableConsumer[T], err error) {
	if herr := fault.Catch(func() { c.OnError(err) }); herr != nil {
		metricsRecorder().RecordListenerPanic()
		fault.Handle(fault.Merge(err, herr))
	}
}

func deliverComplete[T any](c CompletableConsumer[T]) {
	if herr := fault.Catch(c.OnComplete); herr != nil {
		metricsRecorder().RecordListenerPanic()
		fault.Handle(herr)
	}
}

func (d *core[T]) remove(entry *listenerEntry[T]) {
	if !entry.removed.CompareAndSwap(false, true) {
		return
	}
	d.mu.Lock()
	for i, e := range d.listeners {
		if e == entry {
			next := make([]*listenerEntry[T], 0, len(d.listeners)-1)
			next = append(next, d.listeners[:i]...)
			d.listeners = append(next, d.listeners[i+1:]...)
			break
		}
	}
	d.mu.Unlock()
	metricsRecorder().AddListeners(-1)
}

func (d *core[T]) emit(event T) {
	d.mu.Lock()
	if d.done() {
		d.mu.Unlock()
		metricsRecorder().RecordEmission("dropped")
		return
	}
	d.value, d.hasValue = event, true
	snapshot := d.listeners
	d.mu.Unlock()

	metricsRecorder().RecordEmission("event")
	for _, entry := range snapshot {
		if entry.removed.Load() {
			continue
		}
		if err := fault.Catch(func() { entry.consumer.OnEvent(event) }); err != nil {
			metricsRecorder().RecordListenerPanic()
			d.fail(err)
			return
		}
	}
}

// terminate records the terminal outcome and hands back the listeners that
// must be notified, or nil when the dispatcher had already terminated.
func (d *core[T]) terminate(err error) ([]*listenerEntry[T], bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done() {
		return nil, false
	}
	if err != nil {
		d.err = err
	} else {
		d.completed = true
	}
	snapshot := d.listeners
	d.listeners = nil
	return snapshot, true
}

func (d *core[T]) fail(err error) {
	fault.ThrowIfFatal(err)
	snapshot, ok := d.terminate(err)
	if !ok {
		metricsRecorder().RecordEmission("dropped")
		return
	}
	metricsRecorder().RecordEmission("error")
	d.detach(snapshot, func(c *safeConsumer[T]) { deliverError(c, err) })
}

func (d *core[T]) complete() {
	snapshot, ok := d.terminate(nil)
	if !ok {
		metricsRecorder().RecordEmission("dropped")
		return
	}
	metricsRecorder().RecordEmission("complete")
	d.detach(snapshot, func(c *safeConsumer[T]) { deliverComplete(c) })
}

func (d *core[T]) detach(snapshot []*listenerEntry[T], notify func(*safeConsumer[T])) {
	for _, entry := range snapshot {
		if !entry.removed.CompareAndSwap(false, true) {
			continue
		}
		metricsRecorder().AddListeners(-1)
		notify(entry.consumer)
	}
}

// hasValueOrTerminal reports whether latest would return something other
// than fault.ErrNoValue.
func (d *core[T]) hasValueOrTerminal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasValue || d.done()
}

func (d *core[T]) latest() (T, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var zero T
	switch {
	case d.err != nil:
		return zero, &fault.BusCompletedError{Err: d.err}
	case d.completed:
		return zero, &fault.BusCompletedError{}
	case !d.hasValue:
		return zero, fault.ErrNoValue
	}
	return d.value, nil
}

// Dispatcher is the producer side of an endless Bus. It replays the latest
// event to every new listener.
type Dispatcher[T any] struct {
	*Bus[T]
	core *core[T]
}

// NewDispatcher creates a Dispatcher without a value.
func NewDispatcher[T any]() *Dispatcher[T] {
	d := &core[T]{}
	return &Dispatcher[T]{Bus: &Bus[T]{listen: d.listen}, core: d}
}

// NewDispatcherWith creates a Dispatcher holding initial. Zero values count
// as values.
func NewDispatcherWith[T any](initial T) *Dispatcher[T] {
	d := NewDispatcher[T]()
	d.core.value, d.core.hasValue = initial, true
	return d
}

// OnEvent stores event as the latest value and delivers it to every
// listener in registration order. A listener that panics terminates the
// dispatcher, which on the endless view is a contract violation raised here.
func (d *Dispatcher[T]) OnEvent(event T) { d.core.emit(event) }

// HasValue reports whether an event has been emitted or the dispatcher
// terminated.
func (d *Dispatcher[T]) HasValue() bool { return d.core.hasValueOrTerminal() }

// Value returns the latest event.
func (d *Dispatcher[T]) Value() (T, bool) {
	v, err := d.core.latest()
	return v, err == nil
}

// CompletableDispatcher is the producer side of a Completable bus.
type CompletableDispatcher[T any] struct {
	*Completable[T]
	core *core[T]
}

// NewCompletableDispatcher creates a CompletableDispatcher without a value.
func NewCompletableDispatcher[T any]() *CompletableDispatcher[T] {
	d := &core[T]{}
	return &CompletableDispatcher[T]{Completable: &Completable[T]{listen: d.listen}, core: d}
}

// NewCompletableDispatcherWith creates a CompletableDispatcher holding initial.
func NewCompletableDispatcherWith[T any](initial T) *CompletableDispatcher[T] {
	d := NewCompletableDispatcher[T]()
	d.core.value, d.core.hasValue = initial, true
	return d
}

// OnEvent stores event and delivers it to every listener. Ignored after a
// terminal event.
func (d *CompletableDispatcher[T]) OnEvent(event T) { d.core.emit(event) }

// OnError terminates the dispatcher with err. Only the first terminal event
// is delivered.
func (d *CompletableDispatcher[T]) OnError(err error) { d.core.fail(err) }

// OnComplete terminates the dispatcher normally.
func (d *CompletableDispatcher[T]) OnComplete() { d.core.complete() }

// HasValue reports whether Value returns something other than
// fault.ErrNoValue.
func (d *CompletableDispatcher[T]) HasValue() bool { return d.core.hasValueOrTerminal() }

// Value returns the latest event. It fails with *fault.BusCompletedError
// once the dispatcher terminated and with fault.ErrNoValue before the first
// event.
func (d *CompletableDispatcher[T]) Value() (T, error) { return d.core.latest() }
