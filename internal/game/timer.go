package game

import (
	"sync"
	"time"
)

// Timer runs one deadline callback per session.
type Timer struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	fire    func(sessionID string)
	now     func() time.Time
	stopped bool
}

// NewTimer returns a Timer that calls fire when a deadline passes.
func NewTimer(fire func(sessionID string), now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{
		timers: make(map[string]*time.Timer),
		fire:   fire,
		now:    now,
	}
}

// Schedule replaces any pending deadline for sessionID. A deadline in the
// past fires right away on another goroutine.
func (t *Timer) Schedule(sessionID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return
	}
	if old, ok := t.timers[sessionID]; ok {
		old.Stop()
	}

	delay := at.Sub(t.now())
	if delay < 0 {
		delay = 0
	}

	var tm *time.Timer
	tm = time.AfterFunc(delay, func() {
		t.mu.Lock()
		if t.timers[sessionID] == tm {
			delete(t.timers, sessionID)
		}
		stopped := t.stopped
		t.mu.Unlock()

		if !stopped {
			t.fire(sessionID)
		}
	})
	t.timers[sessionID] = tm
}

// Cancel drops the pending deadline for sessionID, if any.
func (t *Timer) Cancel(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tm, ok := t.timers[sessionID]; ok {
		tm.Stop()
		delete(t.timers, sessionID)
	}
}

// Pending reports how many deadlines are armed.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels every deadline; later Schedule calls are ignored.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
}
