// Package fault defines the error taxonomy shared by buses, tasks and signals,
// and the process-wide fallback handler for errors that cannot reach a consumer.
package fault

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// ErrNoValue is returned by Value on a bus that has not seen an event yet.
var ErrNoValue = errors.New("bus: no value")

// NotImplementedError is raised when an error reaches a start form that was
// given no error handler.
type NotImplementedError struct {
	Err error
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("error handler not implemented: %v", e.Err)
}

func (e *NotImplementedError) Unwrap() error { return e.Err }

// UndeliveredError wraps an error that arrived after its consumer had already
// reached a terminal state.
type UndeliveredError struct {
	Err error
}

func (e *UndeliveredError) Error() string {
	return fmt.Sprintf("error not delivered: %v", e.Err)
}

func (e *UndeliveredError) Unwrap() error { return e.Err }

// EndlessBusError is raised when a terminal event reaches a listener of an
// endless bus. Err is nil when the terminal event was a completion.
type EndlessBusError struct {
	Err error
}

func (e *EndlessBusError) Error() string {
	if e.Err == nil {
		return "completed in endless bus"
	}
	return fmt.Sprintf("error in endless bus: %v", e.Err)
}

func (e *EndlessBusError) Unwrap() error { return e.Err }

// BusCompletedError is returned by Value on a terminated bus. Err is nil when
// the bus completed normally.
type BusCompletedError struct {
	Err error
}

func (e *BusCompletedError) Error() string {
	if e.Err == nil {
		return "bus completed normally"
	}
	return fmt.Sprintf("bus completed with error: %v", e.Err)
}

func (e *BusCompletedError) Unwrap() error { return e.Err }

// ExecutionError wraps the failure of a task awaited synchronously.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// PanicError carries a recovered panic value that was not an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// MergedError combines independent failures. Nested merged errors are
// flattened and duplicates are dropped, keeping first-seen order.
type MergedError struct {
	errs []error
}

// Merge combines errs into one error. Nil entries are skipped; it returns nil
// when nothing is left and the error itself when exactly one remains.
func Merge(errs ...error) error {
	flat := flatten(errs)
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	default:
		return &MergedError{errs: flat}
	}
}

// NewMergedError always returns a *MergedError, even for a single cause.
// It returns nil if errs holds no non-nil error.
func NewMergedError(errs ...error) *MergedError {
	flat := flatten(errs)
	if len(flat) == 0 {
		return nil
	}
	return &MergedError{errs: flat}
}

func flatten(errs []error) []error {
	out := make([]error, 0, len(errs))
	var add func(err error)
	add = func(err error) {
		if err == nil {
			return
		}
		if merged, ok := err.(*MergedError); ok {
			for _, inner := range merged.errs {
				add(inner)
			}
			return
		}
		for _, seen := range out {
			if sameError(seen, err) {
				return
			}
		}
		out = append(out, err)
	}
	for _, err := range errs {
		add(err)
	}
	return out
}

// sameError compares by identity, guarding against non-comparable dynamic types.
func sameError(a, b error) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

// Errors returns the underlying errors.
func (e *MergedError) Errors() []error {
	out := make([]error, len(e.errs))
	copy(out, e.errs)
	return out
}

// Len returns the number of underlying errors.
func (e *MergedError) Len() int { return len(e.errs) }

func (e *MergedError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:", len(e.errs))
	for _, err := range e.errs {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap exposes the causes to errors.Is and errors.As.
func (e *MergedError) Unwrap() []error { return e.errs }

// IsFatal reports whether err must never be captured as an ordinary error:
// contract violations of this library and Go runtime errors.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	switch err.(type) {
	case *NotImplementedError, *EndlessBusError:
		return true
	}
	_, ok := err.(runtime.Error)
	return ok
}

// ThrowIfFatal panics with err if it is fatal.
func ThrowIfFatal(err error) {
	if IsFatal(err) {
		panic(err)
	}
}

// FromPanic converts a recovered panic value into an error.
func FromPanic(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r}
}

// Catch runs fn and returns a recovered panic as an error. Fatal panics are
// re-raised.
func Catch(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = FromPanic(r)
			ThrowIfFatal(err)
		}
	}()
	fn()
	return nil
}

// CatchAll is Catch without the fatal re-raise, for goroutines owned by a
// scheduler where a panic would take down the worker.
func CatchAll(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = FromPanic(r)
		}
	}()
	fn()
	return nil
}

// IsNotImplemented reports whether err is a NotImplementedError.
func IsNotImplemented(err error) bool {
	var target *NotImplementedError
	return errors.As(err, &target)
}

// IsUndelivered reports whether err is an UndeliveredError.
func IsUndelivered(err error) bool {
	var target *UndeliveredError
	return errors.As(err, &target)
}

// IsEndlessBus reports whether err is an EndlessBusError.
func IsEndlessBus(err error) bool {
	var target *EndlessBusError
	return errors.As(err, &target)
}
