package session

import (
	"sync"
	"time"
)

// timerSlot holds at most one live delayed task. Arming a new task always
// supersedes the previous one, so no two timers for one session are ever
// concurrently live. A fired task is consumed; re-arming is the fire
// handler's decision.
type timerSlot struct {
	mu  sync.Mutex
	gen uint64
	t   *time.Timer
}

// Arm schedules fire after d, cancelling any previously armed task first.
// The task receives its own generation; handlers that take further locks
// before acting must compare it against Gen again, because a Cancel or a
// new Arm can slip in after the scheduling check here.
func (ts *timerSlot) Arm(d time.Duration, fire func(gen uint64)) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.t != nil {
		ts.t.Stop()
	}
	ts.gen++
	gen := ts.gen
	ts.t = time.AfterFunc(d, func() {
		ts.mu.Lock()
		live := ts.gen == gen
		if live {
			ts.t = nil
		}
		ts.mu.Unlock()
		// A stale timer lost the race to a newer Arm or a Cancel; its
		// task must never run.
		if live {
			fire(gen)
		}
	})
}

// Gen returns the generation of the latest Arm or Cancel.
func (ts *timerSlot) Gen() uint64 {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.gen
}

// Cancel stops the armed task, if any. Safe to call repeatedly and
// concurrently with a firing timer: a task observed as cancelled never
// runs.
func (ts *timerSlot) Cancel() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.gen++
	if ts.t != nil {
		ts.t.Stop()
		ts.t = nil
	}
}

// Armed reports whether a task is currently scheduled.
func (ts *timerSlot) Armed() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.t != nil
}
