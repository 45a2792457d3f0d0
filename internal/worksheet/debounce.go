package worksheet

import (
	"sync"
	"time"
)

// Debouncer runs the last scheduled function after a quiet interval.
type Debouncer struct {
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending func()
	gen     uint64

	// run serializes executions so a flush waits for an in-flight save.
	run sync.Mutex
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Schedule (re)arms the timer with fn, replacing any pending function.
func (d *Debouncer) Schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = fn
	d.timer = time.AfterFunc(d.interval, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	fn := d.take()
	d.mu.Unlock()
	d.exec(fn)
}

// take clears the pending state; d.mu must be held.
func (d *Debouncer) take() func() {
	fn := d.pending
	d.pending = nil
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return fn
}

func (d *Debouncer) exec(fn func()) {
	d.run.Lock()
	defer d.run.Unlock()
	if fn != nil {
		fn()
	}
}

// FlushIfPending runs the pending function now and reports whether there was
// one. It returns only after any in-flight run has finished.
func (d *Debouncer) FlushIfPending() bool {
	d.mu.Lock()
	fn := d.take()
	d.mu.Unlock()
	d.exec(fn)
	return fn != nil
}

// Cancel drops the pending function without running it.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.take()
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}
