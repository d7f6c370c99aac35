// timer.go — timer scheduling boundaries and their introspectable handles.
//
// SetTimeout and SetInterval capture a snapshot at the scheduling call and
// hand back a Timer whose CreationTrace answers "what scheduled this?" long
// after the scheduling stack is gone. Firing posts a macro task; the callback
// itself always runs on the loop goroutine under the captured snapshot.
package doublestack

import (
	"sync"
	"time"
)

// Timer is the handle for a pending timeout or interval.
type Timer struct {
	loop   *Loop
	snap   *snapshot
	delay  time.Duration
	repeat bool

	mu      sync.Mutex
	t       *time.Timer
	stopped bool
}

// SetTimeout schedules fn to run once after d. The call site is a scheduling
// boundary: the current stack is captured and parented on the active causal
// context.
func (l *Loop) SetTimeout(fn func(), d time.Duration) *Timer {
	return l.newTimer(fn, d, false)
}

// SetInterval schedules fn to run every d until cleared. Each firing re-arms
// under the SAME snapshot; a self-perpetuating interval grows no chain beyond
// the configured depth limit.
func (l *Loop) SetInterval(fn func(), d time.Duration) *Timer {
	return l.newTimer(fn, d, true)
}

// ClearTimeout cancels a pending timeout. Clearing an already-fired or nil
// timer is a no-op. The cancelled timer's snapshot simply becomes garbage.
func (l *Loop) ClearTimeout(t *Timer) {
	if t != nil {
		t.Stop()
	}
}

// ClearInterval cancels an interval. Identical to ClearTimeout; both names
// exist so call sites read like the scheduling calls they undo.
func (l *Loop) ClearInterval(t *Timer) {
	l.ClearTimeout(t)
}

func (l *Loop) newTimer(fn func(), d time.Duration, repeat bool) *Timer {
	t := &Timer{
		loop:   l,
		snap:   newSnapshot(l.cur, l.set.ChainDepthLimit()),
		delay:  d,
		repeat: repeat,
	}
	l.mu.Lock()
	l.timers[t] = struct{}{}
	l.mu.Unlock()
	t.arm(fn)
	return t
}

// arm starts (or restarts) the underlying timer. The time.AfterFunc callback
// runs off-loop; it only posts a task and wakes Run.
func (t *Timer) arm(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.t = time.AfterFunc(t.delay, func() { t.fire(fn) })
}

func (t *Timer) fire(fn func()) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	l := t.loop
	l.post(&l.macro, &task{snap: t.snap, fn: func() {
		defer func() {
			if t.repeat {
				t.arm(fn)
			} else {
				t.unregister()
			}
		}()
		fn()
	}})
}

// Stop cancels the timer and releases it from the loop's pending set.
// Safe to call more than once and from any goroutine.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	if t.t != nil {
		t.t.Stop()
	}
	t.mu.Unlock()
	t.unregister()
}

func (t *Timer) unregister() {
	l := t.loop
	l.mu.Lock()
	delete(l.timers, t)
	l.mu.Unlock()
	l.signal()
}

// ID returns the id of the snapshot captured when the timer was scheduled.
func (t *Timer) ID() uint64 { return t.snap.id }

// Delay returns the scheduling delay (the interval period for intervals).
func (t *Timer) Delay() time.Duration { return t.delay }

// Repeats reports whether this handle was created by SetInterval.
func (t *Timer) Repeats() bool { return t.repeat }

// CreationTrace returns the separator-annotated frame sequence captured when
// the timer was scheduled: its own scheduling stack plus every ancestor
// segment. This is the reserved introspection surface for a handle that is
// otherwise opaque. The returned slice is a copy.
func (t *Timer) CreationTrace() []Entry {
	return cloneEntries(t.snap.flatten())
}
