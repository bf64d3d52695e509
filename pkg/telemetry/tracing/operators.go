package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/signal"
	"github.com/goclaw/reactive/pkg/task"
)

const tracerName = "reactive.task"

// Outcomes reported on spans and to a Recorder.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

const attrOutcome = "task.outcome"

// Recorder observes finished executions. *metrics.Manager implements it.
type Recorder interface {
	RecordTask(ctx context.Context, name, outcome string, duration time.Duration)
}

type options struct {
	parent   context.Context
	tracer   trace.Tracer
	recorder Recorder
	attrs    []attribute.KeyValue
}

// Option configures the traced operators.
type Option func(*options)

// WithParent makes every span a child of the span carried by ctx.
func WithParent(ctx context.Context) Option {
	return func(o *options) { o.parent = ctx }
}

// WithTracerProvider uses tp instead of the provider installed by Init.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp.Tracer(tracerName) }
}

// WithRecorder reports each outcome and its duration to r.
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithAttributes adds attrs to every span.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(o *options) { o.attrs = append(o.attrs, attrs...) }
}

// Task wraps t so that each execution runs inside a span named name. The
// span starts when the task is started and ends on success, error or
// cancellation, whichever comes first.
func Task[T any](t *task.Task[T], name string, opts ...Option) *task.Task[T] {
	o := options{parent: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}

	return task.Create(func(downstream task.Consumer[T]) cancel.Cancellable {
		tracer := o.tracer
		if tracer == nil {
			tracer = defaultTracer()
		}
		ctx, span := tracer.Start(o.parent, name, trace.WithAttributes(o.attrs...))
		ex := &execution{ctx: ctx, span: span, name: name, recorder: o.recorder, started: time.Now()}

		upstream := t.StartWith(task.Funcs[T]{
			Success: func(v T) {
				ex.end(OutcomeSuccess, nil)
				downstream.OnSuccess(v)
			},
			Error: func(err error) {
				ex.end(OutcomeError, err)
				downstream.OnError(err)
			},
		})
		return cancel.Func(func() error {
			ex.end(OutcomeCancelled, nil)
			return upstream.Cancel()
		})
	})
}

// Signal is Task for completion-only computations.
func Signal(s *signal.Signal, name string, opts ...Option) *signal.Signal {
	return signal.FromTask(Task(s.Task(), name, opts...))
}

type execution struct {
	once     sync.Once
	ctx      context.Context
	span     trace.Span
	name     string
	recorder Recorder
	started  time.Time
}

func (e *execution) end(outcome string, err error) {
	e.once.Do(func() {
		e.span.SetAttributes(attribute.String(attrOutcome, outcome))
		if err != nil {
			e.span.RecordError(err)
			e.span.SetStatus(codes.Error, err.Error())
		}
		if e.recorder != nil {
			e.recorder.RecordTask(e.ctx, e.name, outcome, time.Since(e.started))
		}
		e.span.End()
	})
}
