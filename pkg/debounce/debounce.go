package debounce

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of Trigger calls into one task run after a
// quiet period. It is safe for concurrent use. The task runs on a timer
// goroutine; the caller is responsible for any synchronization inside it.
type Debouncer struct {
	delay time.Duration
	task  func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// New returns a debouncer that runs task once delay has elapsed without a
// new Trigger.
func New(delay time.Duration, task func()) *Debouncer {
	return &Debouncer{delay: delay, task: task}
}

// Trigger schedules the task, resetting the quiet-period timer if one is
// already pending.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.task == nil {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.run)
}

func (d *Debouncer) run() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	task := d.task
	d.mu.Unlock()
	task()
}

// Flush runs the task immediately if one is pending and cancels the timer.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	pending := d.timer != nil
	if pending {
		d.timer.Stop()
		d.timer = nil
	}
	stopped := d.stopped
	task := d.task
	d.mu.Unlock()
	if pending && !stopped && task != nil {
		task()
	}
}

// Stop cancels any pending run and prevents future ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
