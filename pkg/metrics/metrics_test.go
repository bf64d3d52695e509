package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/trace"

	"github.com/goclaw/reactive/pkg/bus"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/scheduler"
)

func TestNewManager(t *testing.T) {
	m := NewManager(DefaultConfig())
	if m == nil {
		t.Fatal("NewManager returned nil")
	}
	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
	if m.Registry() == nil {
		t.Error("Expected a registry")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}

	// These should not panic
	m.RecordScheduled("io")
	m.RecordEmission("event")
	m.RecordFallbackError("error")
	m.RecordTask(context.Background(), "load", "success", time.Millisecond)
	m.Install()()
}

func TestMetricsHandler(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordScheduled("io")
	m.RecordExecuted("io")
	m.SetQueueDepth("io", 3)
	m.RecordEmission("event")
	m.AddListeners(1)
	m.RecordFallbackError("undelivered")
	m.RecordTask(context.Background(), "load", "success", 5*time.Millisecond)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expected := []string{
		"scheduler_actions_scheduled_total",
		"scheduler_actions_executed_total",
		"scheduler_queue_depth",
		"bus_emissions_total",
		"bus_listeners",
		"fallback_errors_total",
		"task_executions_total",
		"task_duration_seconds",
	}
	for _, metric := range expected {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	m := NoOpManager()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when disabled, got %d", w.Code)
	}
}

func TestInstall_RecordsSchedulerActivity(t *testing.T) {
	m := NewManager(DefaultConfig())
	restore := m.Install()
	defer restore()

	pool := scheduler.NewPool("metrics-test", 1)
	pool.Start()

	var wg sync.WaitGroup
	wg.Add(2)
	pool.Schedule(wg.Done)
	pool.Schedule(func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()
	pool.Stop()

	if got := testutil.ToFloat64(m.schedulerScheduled.WithLabelValues("metrics-test")); got != 2 {
		t.Errorf("scheduled = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.schedulerExecuted.WithLabelValues("metrics-test")); got != 2 {
		t.Errorf("executed = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.schedulerPanics.WithLabelValues("metrics-test")); got != 1 {
		t.Errorf("panics = %v, want 1", got)
	}
}

func TestInstall_RecordsBusActivity(t *testing.T) {
	m := NewManager(DefaultConfig())
	restore := m.Install()
	defer restore()

	d := bus.NewCompletableDispatcher[int]()
	h := d.ListenFuncs(func(int) {}, func(error) {}, nil)
	d.ListenFuncs(func(int) {}, func(error) {}, nil)
	d.OnEvent(1)
	d.OnEvent(2)
	_ = h.Cancel()
	d.OnError(errors.New("done"))
	d.OnEvent(3)

	if got := testutil.ToFloat64(m.busEmissions.WithLabelValues("event")); got != 2 {
		t.Errorf("events = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.busEmissions.WithLabelValues("error")); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.busEmissions.WithLabelValues("dropped")); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.busListeners); got != 0 {
		t.Errorf("listeners = %v, want 0", got)
	}
}

func TestInstall_RecordsFallbackErrors(t *testing.T) {
	m := NewManager(DefaultConfig())
	restore := m.Install()
	defer restore()

	prev := fault.SetHandler(func(error) {})
	defer fault.SetHandler(prev)

	fault.Handle(&fault.UndeliveredError{Err: errors.New("late")})
	fault.Handle(errors.New("plain"))

	if got := testutil.ToFloat64(m.fallbackErrors.WithLabelValues("undelivered")); got != 1 {
		t.Errorf("undelivered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.fallbackErrors.WithLabelValues("error")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
}

func TestRecordTask(t *testing.T) {
	m := NewManager(DefaultConfig())

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{9, 8, 7, 6, 5, 4, 3, 2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	m.RecordTask(ctx, "load", "success", 2*time.Millisecond)
	m.RecordTask(context.Background(), "load", "error", time.Millisecond)

	if got := testutil.ToFloat64(m.taskExecutions.WithLabelValues("load", "success")); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.taskExecutions.WithLabelValues("load", "error")); got != 1 {
		t.Errorf("error = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.taskDuration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestRecordSpanExport(t *testing.T) {
	m := NewManager(DefaultConfig())

	m.RecordSpanExport("success", 3)
	m.RecordSpanExport("success", 2)
	m.RecordSpanExport("failure", 4)

	if got := testutil.ToFloat64(m.spansExported.WithLabelValues("success")); got != 5 {
		t.Errorf("success = %v, want 5", got)
	}
	if got := testutil.ToFloat64(m.spansExported.WithLabelValues("failure")); got != 4 {
		t.Errorf("failure = %v, want 4", got)
	}

	NoOpManager().RecordSpanExport("failure", 1)
}

func TestTraceExemplarLabels_WithSpan(t *testing.T) {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:     trace.SpanID{9, 8, 7, 6, 5, 4, 3, 2},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	labels, ok := traceExemplarLabels(ctx)
	if !ok {
		t.Fatal("expected exemplar labels from valid span context")
	}
	if labels["trace_id"] != spanCtx.TraceID().String() {
		t.Fatalf("expected trace_id %s, got %s", spanCtx.TraceID().String(), labels["trace_id"])
	}
	if labels["span_id"] != spanCtx.SpanID().String() {
		t.Fatalf("expected span_id %s, got %s", spanCtx.SpanID().String(), labels["span_id"])
	}
}

func TestTraceExemplarLabels_WithoutSpan(t *testing.T) {
	labels, ok := traceExemplarLabels(context.Background())
	if ok {
		t.Fatalf("expected no exemplar labels without span, got %v", labels)
	}
}

func BenchmarkRecordEmission(b *testing.B) {
	m := NewManager(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordEmission("event")
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordEmission("event")
		m.RecordScheduled("io")
	}
}
