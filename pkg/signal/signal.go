// Package signal provides completion-only tasks: a Signal either fires once
// or fails once, carrying no value.
package signal

import (
	"context"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/scheduler"
	"github.com/goclaw/reactive/pkg/task"
)

// Consumer receives the outcome of one execution.
type Consumer interface {
	OnSignal()
	OnError(err error)
}

// AsyncConsumer is handed to scheduled start functions.
type AsyncConsumer interface {
	Consumer
	SetOnCancelled(c cancel.Cancellable)
}

// OnStart wires a consumer to a new execution.
type OnStart func(consumer Consumer) cancel.Cancellable

// OnStartAsync is a start function run by a scheduler.
type OnStartAsync func(consumer AsyncConsumer)

// Funcs adapts callbacks to the Consumer interface. A nil Error turns any
// error into a panic with *fault.NotImplementedError.
type Funcs struct {
	Signal func()
	Error  func(err error)
}

// OnSignal implements Consumer.
func (f Funcs) OnSignal() {
	if f.Signal != nil {
		f.Signal()
	}
}

// OnError implements Consumer.
func (f Funcs) OnError(err error) {
	if f.Error == nil {
		panic(&fault.NotImplementedError{Err: err})
	}
	f.Error(err)
}

// Signal is a cold computation that completes without a value.
type Signal struct {
	task *task.Task[struct{}]
}

// Create builds a Signal from its start function.
func Create(onStart OnStart) *Signal {
	return FromTask(task.Create(func(c task.Consumer[struct{}]) cancel.Cancellable {
		return onStart(taskConsumer{c})
	}))
}

// CreateScheduled builds a Signal whose start function runs on s.
func CreateScheduled(s scheduler.Scheduler, onStart OnStartAsync) *Signal {
	return FromTask(task.CreateScheduled(s, func(c task.AsyncConsumer[struct{}]) {
		onStart(asyncConsumer{c})
	}))
}

// FromCallable builds a Signal that runs fn on s.
func FromCallable(s scheduler.Scheduler, fn func() error) *Signal {
	return FromTask(task.FromCallable(s, func() (struct{}, error) {
		return struct{}{}, fn()
	}))
}

// Done returns a Signal that fires immediately.
func Done() *Signal {
	return FromTask(task.Just(struct{}{}))
}

// Error returns a Signal that fails with err.
func Error(err error) *Signal {
	return FromTask(task.Error[struct{}](err))
}

// FromTask turns t into a Signal that fires when t succeeds.
func FromTask[T any](t *task.Task[T]) *Signal {
	if st, ok := any(t).(*task.Task[struct{}]); ok {
		return &Signal{task: st}
	}
	return &Signal{task: task.Map(t, func(T) (struct{}, error) { return struct{}{}, nil })}
}

// Task returns the underlying task.
func (s *Signal) Task() *task.Task[struct{}] { return s.task }

// Start runs the signal. An error panics with *fault.NotImplementedError.
func (s *Signal) Start() cancel.Cancellable { return s.task.Start() }

// StartFunc runs the signal with a completion callback only.
func (s *Signal) StartFunc(onSignal func()) cancel.Cancellable {
	return s.StartWith(Funcs{Signal: onSignal})
}

// StartFuncs runs the signal with both callbacks.
func (s *Signal) StartFuncs(onSignal func(), onError func(error)) cancel.Cancellable {
	return s.StartWith(Funcs{Signal: onSignal, Error: onError})
}

// StartWith runs the signal and delivers its outcome to consumer at most once.
func (s *Signal) StartWith(consumer Consumer) cancel.Cancellable {
	return s.task.StartWith(signalConsumer{consumer})
}

// Await blocks until the signal fires or ctx is done.
func (s *Signal) Await(ctx context.Context) error {
	_, err := s.task.Await(ctx)
	return err
}

// AndThen starts next once s has fired.
func (s *Signal) AndThen(next *Signal) *Signal {
	return FromTask(task.FlatMap(s.task, func(struct{}) (*task.Task[struct{}], error) {
		return next.task, nil
	}))
}

// ObserveOn delivers the outcome on sch.
func (s *Signal) ObserveOn(sch scheduler.Scheduler) *Signal {
	return FromTask(s.task.ObserveOn(sch))
}

// DoOnStart runs action each time the signal is started.
func (s *Signal) DoOnStart(action func()) *Signal {
	return FromTask(s.task.DoOnStart(action))
}

// DoOnSuccess runs action before the signal is delivered.
func (s *Signal) DoOnSuccess(action func()) *Signal {
	return FromTask(s.task.DoOnSuccess(func(struct{}) { action() }))
}

// DoOnError runs action before an error is delivered.
func (s *Signal) DoOnError(action func(error)) *Signal {
	return FromTask(s.task.DoOnError(action))
}

// DoOnTerminate runs action before either outcome is delivered.
func (s *Signal) DoOnTerminate(action func()) *Signal {
	return FromTask(s.task.DoOnTerminate(action))
}

// DoOnCancel runs action the first time an execution is cancelled.
func (s *Signal) DoOnCancel(action func()) *Signal {
	return FromTask(s.task.DoOnCancel(action))
}

// signalConsumer presents a Consumer as a task consumer.
type signalConsumer struct {
	consumer Consumer
}

func (c signalConsumer) OnSuccess(struct{}) { c.consumer.OnSignal() }
func (c signalConsumer) OnError(err error)  { c.consumer.OnError(err) }

// taskConsumer presents a task consumer as a Consumer.
type taskConsumer struct {
	consumer task.Consumer[struct{}]
}

func (c taskConsumer) OnSignal()         { c.consumer.OnSuccess(struct{}{}) }
func (c taskConsumer) OnError(err error) { c.consumer.OnError(err) }

type asyncConsumer struct {
	consumer task.AsyncConsumer[struct{}]
}

func (c asyncConsumer) OnSignal()                           { c.consumer.OnSuccess(struct{}{}) }
func (c asyncConsumer) OnError(err error)                   { c.consumer.OnError(err) }
func (c asyncConsumer) SetOnCancelled(h cancel.Cancellable) { c.consumer.SetOnCancelled(h) }
