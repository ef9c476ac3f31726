package watcher

import (
	"sync"
	"time"
)

// Debouncer batches rapid change events into a single action after a quiet
// period. Editors fire several filesystem events per save; we want one sync
// run per burst, not one per event.
type Debouncer struct {
	mu       sync.Mutex
	timer    *time.Timer
	duration time.Duration
	action   func()
	seq      uint64         // invalidates stale timer fires
	wg       sync.WaitGroup // tracks in-flight actions for shutdown
}

// NewDebouncer creates a debouncer that runs action once the duration has
// passed since the last Trigger.
func NewDebouncer(duration time.Duration, action func()) *Debouncer {
	return &Debouncer{duration: duration, action: action}
}

// Trigger schedules the action, resetting the quiet-period timer.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil && d.timer.Stop() {
		d.wg.Done()
	}

	d.seq++
	seq := d.seq

	d.wg.Add(1)
	d.timer = time.AfterFunc(d.duration, func() {
		defer d.wg.Done()

		d.mu.Lock()
		if d.seq != seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		// Run the action without the lock held.
		d.mu.Unlock()

		d.action()
	})
}

// Cancel stops any pending action. It does not wait for one that is already
// executing.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		if d.timer.Stop() {
			d.wg.Done()
		}
		d.timer = nil
	}
}

// CancelAndWait stops any pending action and blocks until an in-flight one
// completes. Use during shutdown to drain a running sync.
func (d *Debouncer) CancelAndWait() {
	d.Cancel()
	d.wg.Wait()
}
