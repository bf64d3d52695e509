package fault

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	mu    sync.Mutex
	kinds []string
}

func (m *recordingMetrics) RecordFallbackError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
}

func TestMerge(t *testing.T) {
	a, b, c := errors.New("a"), errors.New("b"), errors.New("c")

	assert.Nil(t, Merge())
	assert.Nil(t, Merge(nil, nil))
	assert.Same(t, a, Merge(nil, a))

	merged := Merge(a, Merge(b, a), c, b)
	var me *MergedError
	require.ErrorAs(t, merged, &me)
	assert.Equal(t, []error{a, b, c}, me.Errors(), "nested merges are flattened and de-duplicated")
	assert.Equal(t, 3, me.Len())
	assert.ErrorIs(t, merged, c)
	assert.Contains(t, merged.Error(), "3 errors occurred")
}

func TestMerge_NonComparableErrors(t *testing.T) {
	// Non-comparable dynamic types must never be compared with ==.
	e1 := fmt.Errorf("wrapped: %w", errors.New("x"))
	merged := NewMergedError(e1, e1)
	require.NotNil(t, merged)
	assert.Equal(t, 1, merged.Len())

	assert.NotPanics(t, func() {
		_ = Merge(multi{errs: []error{e1}}, multi{errs: []error{e1}})
	})
}

type multi struct{ errs []error }

func (m multi) Error() string { return "multi" }

func TestNewMergedError_SingleCause(t *testing.T) {
	a := errors.New("a")
	merged := NewMergedError(nil, a)
	require.NotNil(t, merged)
	assert.Equal(t, []error{a}, merged.Errors())
	assert.Nil(t, NewMergedError(nil))
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.True(t, IsFatal(&NotImplementedError{Err: errors.New("x")}))
	assert.True(t, IsFatal(&EndlessBusError{}))

	var rtErr error
	func() {
		defer func() { rtErr = FromPanic(recover()) }()
		var m map[string]int
		m["boom"] = 1
	}()
	assert.True(t, IsFatal(rtErr))
}

func TestCatch(t *testing.T) {
	boom := errors.New("boom")
	assert.Same(t, boom, Catch(func() { panic(boom) }))
	assert.NoError(t, Catch(func() {}))

	err := Catch(func() { panic("text") })
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "text", pe.Value)

	fatal := &EndlessBusError{}
	assert.PanicsWithValue(t, fatal, func() {
		_ = Catch(func() { panic(fatal) })
	})
	assert.Same(t, fatal, CatchAll(func() { panic(fatal) }))
}

func TestHandle_UsesInstalledHandler(t *testing.T) {
	var got []error
	prev := SetHandler(func(err error) { got = append(got, err) })
	t.Cleanup(func() { SetHandler(prev) })

	rec := &recordingMetrics{}
	SetMetricsRecorder(rec)
	t.Cleanup(func() { SetMetricsRecorder(nil) })

	undelivered := &UndeliveredError{Err: errors.New("late")}
	Handle(undelivered)
	Handle(nil)

	require.Len(t, got, 1)
	assert.Same(t, undelivered, got[0])
	assert.Equal(t, []string{"undelivered"}, rec.kinds)
}

func TestHandle_DefaultPanics(t *testing.T) {
	prev := SetHandler(nil)
	t.Cleanup(func() { SetHandler(prev) })

	boom := errors.New("boom")
	assert.PanicsWithValue(t, boom, func() { Handle(boom) })
}

func TestHandle_PanickingHandlerEscalates(t *testing.T) {
	handlerErr := errors.New("handler failed")
	prev := SetHandler(func(error) { panic(handlerErr) })
	t.Cleanup(func() { SetHandler(prev) })

	assert.PanicsWithValue(t, handlerErr, func() { Handle(errors.New("original")) })
}

func TestSetHandler_ReturnsPrevious(t *testing.T) {
	first := Handler(func(error) {})
	orig := SetHandler(first)
	t.Cleanup(func() { SetHandler(orig) })

	prev := SetHandler(nil)
	require.NotNil(t, prev)
	ResetHandler()
}

func TestKind(t *testing.T) {
	assert.Equal(t, "none", Kind(nil))
	assert.Equal(t, "merged", Kind(NewMergedError(errors.New("a"), errors.New("b"))))
	assert.Equal(t, "not_implemented", Kind(&NotImplementedError{}))
	assert.Equal(t, "panic", Kind(&PanicError{Value: 1}))
	assert.Equal(t, "error", Kind(errors.New("x")))
}

func TestErrorTypes_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	for _, err := range []error{
		&NotImplementedError{Err: cause},
		&UndeliveredError{Err: cause},
		&EndlessBusError{Err: cause},
		&BusCompletedError{Err: cause},
		&ExecutionError{Err: cause},
	} {
		assert.ErrorIs(t, err, cause, "%T", err)
	}
	assert.True(t, IsUndelivered(&UndeliveredError{Err: cause}))
	assert.True(t, IsNotImplemented(fmt.Errorf("wrap: %w", &NotImplementedError{Err: cause})))
	assert.True(t, IsEndlessBus(&EndlessBusError{}))
	assert.Equal(t, "bus completed normally", (&BusCompletedError{}).Error())
}
