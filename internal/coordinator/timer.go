package coordinator

import (
	"sync"
	"time"
)

// itemTimer is the single-shot expiry timer of one auction. Extending adds to
// the remaining time; it never resets to the full duration, so a late bid
// buys more time instead of a fresh window.
type itemTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	endTime time.Time
	armed   bool
}

func newItemTimer() *itemTimer {
	return &itemTimer{}
}

// Schedule arms the timer to fire fn once after d, replacing any previous
// schedule.
func (t *itemTimer) Schedule(d time.Duration, fn func()) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	if d < 0 {
		d = 0
	}
	t.endTime = time.Now().Add(d)
	t.armed = true
	t.timer = time.AfterFunc(d, fn)
	return t.endTime
}

// Extend pushes the deadline to now + max(0, remaining) + extra and returns
// the new end time.
func (t *itemTimer) Extend(extra time.Duration, fn func()) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	remaining := time.Until(t.endTime)
	if remaining < 0 {
		remaining = 0
	}
	d := remaining + extra
	t.endTime = time.Now().Add(d)
	t.armed = true
	t.timer = time.AfterFunc(d, fn)
	return t.endTime
}

// Stop cancels the pending schedule.
func (t *itemTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.armed = false
}

// EndTime returns the absolute deadline and whether the timer is armed.
func (t *itemTimer) EndTime() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endTime, t.armed
}
