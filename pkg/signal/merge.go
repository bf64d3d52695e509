package signal

import (
	"sync/atomic"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/task"
)

// Merge fires once both a and b have fired. The first error fails the result
// and cancels the other side; an error the other side still reports goes to
// the fallback handler as *fault.UndeliveredError.
func Merge(a, b *Signal) *Signal {
	return FromTask(task.Create(func(downstream task.Consumer[struct{}]) cancel.Cancellable {
		m := &merger{downstream: downstream, members: cancel.NewComposite()}
		m.remaining.Store(2)
		_ = m.members.Add(a.StartWith(m))
		_ = m.members.Add(b.StartWith(m))
		return m.members
	}))
}

type merger struct {
	downstream task.Consumer[struct{}]
	members    *cancel.Composite
	remaining  atomic.Int32
	failed     atomic.Bool
}

func (m *merger) OnSignal() {
	if m.remaining.Add(-1) == 0 {
		m.downstream.OnSuccess(struct{}{})
	}
}

func (m *merger) OnError(err error) {
	if m.failed.CompareAndSwap(false, true) {
		_ = m.members.Cancel()
		m.downstream.OnError(err)
		return
	}
	fault.Handle(&fault.UndeliveredError{Err: err})
}
