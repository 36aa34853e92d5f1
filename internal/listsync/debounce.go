package listsync

import (
	"sync"
	"time"
)

// Debouncer runs a callback once input has been quiet for a fixed delay.
// Every call to Debounce cancels the pending callback and restarts the countdown.
type Debouncer struct {
	mu    sync.Mutex
	clock Clock
	delay time.Duration
	timer Timer
	// seq identifies the latest scheduled callback; a timer that fires after
	// being superseded or cancelled sees a different value and does nothing.
	seq uint64
}

// NewDebouncer creates a debouncer with the given delay.
func NewDebouncer(clock Clock, delay time.Duration) *Debouncer {
	if clock == nil {
		clock = SystemClock()
	}
	return &Debouncer{clock: clock, delay: delay}
}

// Delay returns the fixed countdown length.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Debounce schedules fn after the delay, replacing any pending call.
func (d *Debouncer) Debounce(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if seq != d.seq {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending call, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}

// Pending reports whether a callback is waiting for its countdown.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
