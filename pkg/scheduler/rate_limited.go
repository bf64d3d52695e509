package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/goclaw/reactive/pkg/cancel"
	"github.com/goclaw/reactive/pkg/fault"
	"github.com/goclaw/reactive/pkg/logger"
)

// ErrRateLimitExceeded is reported to the fallback handler when a limiter can
// never admit an action.
var ErrRateLimitExceeded = errors.New("scheduler: rate limit can never admit action")

// RateLimited hands actions to another Scheduler no faster than its limiter
// allows. Waiting happens on a timer, so Schedule still returns promptly.
type RateLimited struct {
	inner   Scheduler
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with limiter. A limiter that can never admit an
// action (zero burst with a finite limit) makes Schedule drop it: the action
// never runs, so whatever waits on it never terminates. Each drop is reported
// to fault.Handle as an error wrapping ErrRateLimitExceeded.
func NewRateLimited(inner Scheduler, limiter *rate.Limiter) *RateLimited {
	return &RateLimited{inner: inner, limiter: limiter}
}

// Schedule implements Scheduler.
func (r *RateLimited) Schedule(action func()) cancel.Cancellable {
	reservation := r.limiter.Reserve()
	if !reservation.OK() {
		logger.Warn("scheduler: rate limit can never admit action, dropping it",
			"limit", float64(r.limiter.Limit()),
			"burst", r.limiter.Burst(),
		)
		metricsRecorder().RecordCancelled("rate_limited")
		fault.Handle(fmt.Errorf("%w: limit %v, burst %d",
			ErrRateLimitExceeded, r.limiter.Limit(), r.limiter.Burst()))
		return cancel.Empty()
	}

	delay := reservation.Delay()
	if delay <= 0 {
		return r.inner.Schedule(action)
	}

	d := &delayedAction{inner: r.inner, action: action, reservation: reservation}
	d.mu.Lock()
	d.timer = time.AfterFunc(delay, d.fire)
	d.mu.Unlock()
	return d
}

// delayedAction waits for its reservation before reaching the inner scheduler.
type delayedAction struct {
	inner       Scheduler
	action      func()
	reservation *rate.Reservation

	mu        sync.Mutex
	timer     *time.Timer
	scheduled cancel.Cancellable
	cancelled bool
}

func (d *delayedAction) fire() {
	d.mu.Lock()
	if d.cancelled {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	c := d.inner.Schedule(d.action)

	d.mu.Lock()
	if d.cancelled {
		d.mu.Unlock()
		_ = c.Cancel()
		return
	}
	d.scheduled = c
	d.mu.Unlock()
}

func (d *delayedAction) Cancel() error {
	d.mu.Lock()
	if d.cancelled {
		d.mu.Unlock()
		return nil
	}
	d.cancelled = true
	timer, scheduled := d.timer, d.scheduled
	d.mu.Unlock()

	if timer != nil && timer.Stop() {
		d.reservation.Cancel()
	}
	if scheduled != nil {
		return scheduled.Cancel()
	}
	return nil
}
