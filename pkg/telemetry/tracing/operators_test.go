package tracing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/reactive/pkg/metrics"
	"github.com/goclaw/reactive/pkg/scheduler"
	"github.com/goclaw/reactive/pkg/signal"
	"github.com/goclaw/reactive/pkg/task"
)

var _ Recorder = (*metrics.Manager)(nil)

type recordedTask struct {
	name     string
	outcome  string
	sampled  bool
	duration time.Duration
}

type taskRecorder struct {
	mu      sync.Mutex
	records []recordedTask
}

func (r *taskRecorder) RecordTask(ctx context.Context, name, outcome string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, recordedTask{
		name:     name,
		outcome:  outcome,
		sampled:  spanSampled(ctx),
		duration: d,
	})
}

func spanSampled(ctx context.Context) bool {
	return trace.SpanContextFromContext(ctx).IsSampled()
}

func newTestProvider(t *testing.T) (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, recorder
}

func outcomeOf(span sdktrace.ReadOnlySpan) string {
	for _, kv := range span.Attributes() {
		if kv.Key == attrOutcome {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestTask_SuccessEndsSpan(t *testing.T) {
	tp, spans := newTestProvider(t)
	rec := &taskRecorder{}

	traced := Task(task.Just(7), "load-user",
		WithTracerProvider(tp),
		WithRecorder(rec),
		WithAttributes(attribute.String("user.kind", "admin")),
	)

	var got int
	traced.StartFuncs(func(v int) { got = v }, func(err error) { t.Fatalf("unexpected error: %v", err) })

	if got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	ended := spans.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Name() != "load-user" {
		t.Errorf("unexpected span name %q", ended[0].Name())
	}
	if outcomeOf(ended[0]) != OutcomeSuccess {
		t.Errorf("expected outcome %q, got %q", OutcomeSuccess, outcomeOf(ended[0]))
	}
	if len(rec.records) != 1 || rec.records[0].outcome != OutcomeSuccess || !rec.records[0].sampled {
		t.Errorf("unexpected recorder calls: %+v", rec.records)
	}
}

func TestTask_ErrorSetsStatus(t *testing.T) {
	tp, spans := newTestProvider(t)
	boom := errors.New("boom")

	var got error
	Task(task.Error[int](boom), "failing", WithTracerProvider(tp)).
		StartFuncs(func(int) {}, func(err error) { got = err })

	if !errors.Is(got, boom) {
		t.Fatalf("expected boom, got %v", got)
	}
	ended := spans.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", ended[0].Status())
	}
	if outcomeOf(ended[0]) != OutcomeError {
		t.Errorf("expected outcome %q, got %q", OutcomeError, outcomeOf(ended[0]))
	}
	if len(ended[0].Events()) == 0 {
		t.Error("expected the error to be recorded as a span event")
	}
}

func TestTask_CancelEndsSpanOnce(t *testing.T) {
	tp, spans := newTestProvider(t)
	rec := &taskRecorder{}
	manual := scheduler.NewManual()

	handle := Task(task.FromCallable(manual, func() (int, error) { return 1, nil }), "slow",
		WithTracerProvider(tp), WithRecorder(rec)).
		StartFuncs(func(int) { t.Fatal("value delivered after cancel") }, func(error) {})

	if len(spans.Started()) != 1 || len(spans.Ended()) != 0 {
		t.Fatal("expected a started span that has not ended")
	}
	if err := handle.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	_ = handle.Cancel()
	manual.RunAll()

	ended := spans.Ended()
	if len(ended) != 1 || outcomeOf(ended[0]) != OutcomeCancelled {
		t.Fatalf("expected one cancelled span, got %d", len(ended))
	}
	if len(rec.records) != 1 || rec.records[0].outcome != OutcomeCancelled {
		t.Errorf("unexpected recorder calls: %+v", rec.records)
	}
}

func TestTask_EachStartGetsOwnSpan(t *testing.T) {
	tp, spans := newTestProvider(t)
	traced := Task(task.Just("x"), "repeat", WithTracerProvider(tp))

	traced.Start()
	traced.Start()

	if n := len(spans.Ended()); n != 2 {
		t.Fatalf("expected 2 spans, got %d", n)
	}
}

func TestTask_WithParent(t *testing.T) {
	tp, spans := newTestProvider(t)
	parentCtx, parent := tp.Tracer("test").Start(context.Background(), "parent")

	Task(task.Just(1), "child", WithTracerProvider(tp), WithParent(parentCtx)).Start()
	parent.End()

	var child sdktrace.ReadOnlySpan
	for _, s := range spans.Ended() {
		if s.Name() == "child" {
			child = s
		}
	}
	if child == nil {
		t.Fatal("child span not recorded")
	}
	if child.Parent().SpanID() != parent.SpanContext().SpanID() {
		t.Error("expected child to be parented to the given span")
	}
}

func TestSignal(t *testing.T) {
	tp, spans := newTestProvider(t)

	done := false
	Signal(signal.Done(), "flush", WithTracerProvider(tp)).
		StartFuncs(func() { done = true }, func(err error) { t.Fatalf("unexpected error: %v", err) })

	if !done {
		t.Fatal("expected signal to complete")
	}
	ended := spans.Ended()
	if len(ended) != 1 || ended[0].Name() != "flush" || outcomeOf(ended[0]) != OutcomeSuccess {
		t.Fatalf("unexpected spans: %d", len(ended))
	}
}
