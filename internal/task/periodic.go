// Package task provides the periodic-execution primitive the core uses to
// sweep expired sessions and run other background upkeep.
package task

import (
	"sync"
	"time"

	"github.com/0xinf0/nooshdaroo-sub001/internal/coreerr"
	"github.com/0xinf0/nooshdaroo-sub001/internal/corelog"
)

// Periodic is a task that runs on a fixed interval until Close is called.
type Periodic struct {
	// Interval between runs of Execute.
	Interval time.Duration
	// Execute is the task function.
	Execute func() error

	access  sync.Mutex
	timer   *time.Timer
	running bool
}

func (t *Periodic) hasClosed() bool {
	t.access.Lock()
	defer t.access.Unlock()
	return !t.running
}

func (t *Periodic) checkedExecute() {
	if t.hasClosed() {
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				corelog.Record(&corelog.GeneralMessage{
					Severity: corelog.SeverityError,
					Content:  coreerr.New("periodic task panic: ", r),
				})
			}
		}()

		if err := t.Execute(); err != nil {
			corelog.Record(&corelog.GeneralMessage{
				Severity: corelog.SeverityWarning,
				Content:  coreerr.New("periodic task execution failed").Base(err),
			})
		}

		t.access.Lock()
		if t.running {
			t.timer = time.AfterFunc(t.Interval, t.checkedExecute)
		}
		t.access.Unlock()
	}()
}

// Start begins running Execute every Interval.
func (t *Periodic) Start() error {
	t.access.Lock()
	if t.running {
		t.access.Unlock()
		return nil
	}
	t.running = true
	t.access.Unlock()

	t.checkedExecute()
	return nil
}

// Close stops the periodic task. Safe to call more than once.
func (t *Periodic) Close() error {
	t.access.Lock()
	defer t.access.Unlock()

	t.running = false
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	return nil
}
