// Package signal provides the activity timer used to enforce session idle
// timeouts (spec §5 "Timeouts").
package signal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/0xinf0/nooshdaroo-sub001/internal/task"
)

// ActivityUpdater is notified of activity, resetting the idle clock.
type ActivityUpdater interface {
	Update()
}

// ActivityTimer fires onTimeout once no Update() call has arrived within
// the configured timeout window. Used by the Session Manager for the
// 60s datagram idle timeout.
type ActivityTimer struct {
	mu        sync.RWMutex
	updated   chan struct{}
	checkTask *task.Periodic
	onTimeout func()
	consumed  atomic.Bool
	once      sync.Once
}

// Update resets the idle clock.
func (t *ActivityTimer) Update() {
	select {
	case t.updated <- struct{}{}:
	default:
	}
}

func (t *ActivityTimer) check() error {
	select {
	case <-t.updated:
	default:
		t.finish()
	}
	return nil
}

func (t *ActivityTimer) finish() {
	t.once.Do(func() {
		t.consumed.Store(true)
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.checkTask != nil {
			t.checkTask.Close()
		}
		t.onTimeout()
	})
}

// SetTimeout (re)arms the timer for the given timeout. A zero timeout fires
// onTimeout immediately.
func (t *ActivityTimer) SetTimeout(timeout time.Duration) {
	if t.consumed.Load() {
		return
	}
	if timeout == 0 {
		t.finish()
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.consumed.Load() {
		return
	}
	newCheckTask := &task.Periodic{
		Interval: timeout,
		Execute:  t.check,
	}
	if t.checkTask != nil {
		t.checkTask.Close()
	}
	t.checkTask = newCheckTask
	t.Update()
	newCheckTask.Start()
}

// Expired reports whether the timer has already fired.
func (t *ActivityTimer) Expired() bool {
	return t.consumed.Load()
}

// NewActivityTimer creates an armed ActivityTimer that calls onTimeout once
// the window elapses with no Update() call.
func NewActivityTimer(timeout time.Duration, onTimeout func()) *ActivityTimer {
	timer := &ActivityTimer{
		updated:   make(chan struct{}, 1),
		onTimeout: onTimeout,
	}
	timer.SetTimeout(timeout)
	return timer
}
