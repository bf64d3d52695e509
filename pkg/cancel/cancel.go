// Package cancel provides idempotent teardown handles and their composite,
// serial and stateful variants.
package cancel

import (
	"sync"
	"sync/atomic"

	"github.com/goclaw/reactive/pkg/fault"
)

// Cancellable is an idempotent teardown handle. Only the first Cancel call
// has an effect; later calls return nil.
type Cancellable interface {
	Cancel() error
}

type funcCancellable struct {
	once sync.Once
	fn   func() error
}

func (c *funcCancellable) Cancel() (err error) {
	c.once.Do(func() {
		err = c.fn()
	})
	return err
}

// Func wraps fn into an idempotent Cancellable.
func Func(fn func() error) Cancellable {
	if fn == nil {
		return Empty()
	}
	return &funcCancellable{fn: fn}
}

// Action wraps an infallible fn into an idempotent Cancellable.
func Action(fn func()) Cancellable {
	if fn == nil {
		return Empty()
	}
	return Func(func() error {
		fn()
		return nil
	})
}

type emptyCancellable struct{}

func (emptyCancellable) Cancel() error { return nil }

var empty Cancellable = emptyCancellable{}

// Empty returns the shared no-op Cancellable.
func Empty() Cancellable { return empty }

// IsEmpty reports whether c is the shared no-op Cancellable or nil.
func IsEmpty(c Cancellable) bool {
	return c == nil || c == empty
}

// Stateful only records the cancellation; producers poll IsCancelled.
type Stateful struct {
	cancelled atomic.Bool
}

// NewStateful creates a Stateful handle.
func NewStateful() *Stateful { return &Stateful{} }

// Cancel marks the handle cancelled.
func (s *Stateful) Cancel() error {
	s.cancelled.Store(true)
	return nil
}

// IsCancelled reports whether Cancel was called.
func (s *Stateful) IsCancelled() bool { return s.cancelled.Load() }

// Composite cancels a mutable set of members together.
type Composite struct {
	mu        sync.Mutex
	members   []Cancellable
	cancelled atomic.Bool
}

// NewComposite creates a Composite holding members.
func NewComposite(members ...Cancellable) *Composite {
	c := &Composite{}
	for _, m := range members {
		if m != nil {
			c.members = append(c.members, m)
		}
	}
	return c
}

// Add stores m, or cancels it right away if the composite is already
// cancelled. The member is never cancelled while the lock is held.
func (c *Composite) Add(m Cancellable) error {
	if m == nil {
		return nil
	}
	if !c.cancelled.Load() {
		c.mu.Lock()
		if !c.cancelled.Load() {
			c.members = append(c.members, m)
			c.mu.Unlock()
			return nil
		}
		c.mu.Unlock()
	}
	return m.Cancel()
}

// Remove drops m without cancelling it and reports whether it was stored.
// Members are matched by ==, so m must be of a comparable type.
func (c *Composite) Remove(m Cancellable) bool {
	if m == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, member := range c.members {
		if member == m {
			last := len(c.members) - 1
			c.members[i] = c.members[last]
			c.members[last] = nil
			c.members = c.members[:last]
			return true
		}
	}
	return false
}

// Clear cancels and drops the current members without cancelling the
// composite itself.
func (c *Composite) Clear() error {
	if c.cancelled.Load() {
		return nil
	}
	c.mu.Lock()
	if c.cancelled.Load() {
		c.mu.Unlock()
		return nil
	}
	members := c.members
	c.members = nil
	c.mu.Unlock()
	return cancelAll(members)
}

// Cancel cancels every member. All members are attempted; their errors are
// combined into one *fault.MergedError.
func (c *Composite) Cancel() error {
	if c.cancelled.Load() {
		return nil
	}
	c.mu.Lock()
	if c.cancelled.Load() {
		c.mu.Unlock()
		return nil
	}
	c.cancelled.Store(true)
	members := c.members
	c.members = nil
	c.mu.Unlock()
	return cancelAll(members)
}

// IsCancelled reports whether Cancel was called.
func (c *Composite) IsCancelled() bool { return c.cancelled.Load() }

// Len returns the number of stored members.
func (c *Composite) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

func cancelAll(members []Cancellable) error {
	var errs []error
	for _, m := range members {
		if err := cancelSafely(m); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fault.NewMergedError(errs...)
}

// cancelSafely turns a panicking member into an error so the remaining
// members still get cancelled.
func cancelSafely(m Cancellable) (err error) {
	if perr := fault.Catch(func() { err = m.Cancel() }); perr != nil {
		return perr
	}
	return err
}

type serialSlot struct {
	c Cancellable
}

var cancelledSlot = &serialSlot{}

// Serial holds at most one member, typically the current in-flight operation.
type Serial struct {
	slot atomic.Pointer[serialSlot]
}

// NewSerial creates an empty Serial handle.
func NewSerial() *Serial { return &Serial{} }

// Set replaces the current member, cancelling the previous one. If the
// Serial is already cancelled, m is cancelled instead of stored.
func (s *Serial) Set(m Cancellable) error {
	next := &serialSlot{c: m}
	for {
		current := s.slot.Load()
		if current == cancelledSlot {
			if m == nil {
				return nil
			}
			return m.Cancel()
		}
		if s.slot.CompareAndSwap(current, next) {
			if current != nil && current.c != nil {
				return current.c.Cancel()
			}
			return nil
		}
	}
}

// Clear cancels and drops the current member; later Sets are still accepted.
func (s *Serial) Clear() error {
	for {
		current := s.slot.Load()
		if current == cancelledSlot || current == nil {
			return nil
		}
		if s.slot.CompareAndSwap(current, nil) {
			if current.c != nil {
				return current.c.Cancel()
			}
			return nil
		}
	}
}

// Cancel cancels the current member and rejects future ones.
func (s *Serial) Cancel() error {
	current := s.slot.Swap(cancelledSlot)
	if current == cancelledSlot || current == nil || current.c == nil {
		return nil
	}
	return current.c.Cancel()
}

// IsCancelled reports whether Cancel was called.
func (s *Serial) IsCancelled() bool { return s.slot.Load() == cancelledSlot }
