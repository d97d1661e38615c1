// Package schedule runs a function periodically on a cancellable timer.
package schedule

import (
	"sync"
	"time"
)

// Task calls fn after a start delay and then every interval until stopped.
// At most one run is pending at any time and runs never overlap: a run
// that starts while another is still executing waits for it.
//
// A run that calls Start or Stop on its own task replaces the automatic
// reschedule that would otherwise follow it.
type Task struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	active  bool
	pending bool

	run sync.Mutex
}

// New returns a stopped Task.
func New(interval time.Duration, fn func()) *Task {
	return &Task{interval: interval, fn: fn}
}

// Interval returns the period between runs.
func (t *Task) Interval() time.Duration {
	return t.interval
}

// Start cancels any pending run and schedules the next one after delay.
func (t *Task) Start(delay time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.active = true
	t.scheduleLocked(delay)
}

// Stop cancels any pending run. It reports whether the task was active.
// A run already executing is allowed to finish but will not reschedule.
func (t *Task) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.active
	t.cancelLocked()
	t.active = false
	return was
}

// Active reports whether the task has been started and not stopped.
func (t *Task) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// Pending reports whether a run is scheduled and has not started yet.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *Task) cancelLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = false
}

func (t *Task) scheduleLocked(d time.Duration) {
	if d < 0 {
		d = 0
	}
	gen := t.gen
	t.pending = true
	t.timer = time.AfterFunc(d, func() { t.fire(gen) })
}

func (t *Task) fire(gen uint64) {
	t.run.Lock()
	defer t.run.Unlock()

	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = nil
	t.pending = false
	t.mu.Unlock()

	t.fn()

	t.mu.Lock()
	if gen == t.gen && t.active {
		t.scheduleLocked(t.interval)
	}
	t.mu.Unlock()
}
