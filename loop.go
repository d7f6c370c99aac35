// loop.go — the cooperative event loop and the causal context slot.
//
// The loop is the opt-in decorator this package offers instead of patching
// process-wide scheduling entry points: timers, immediates, next-tick jobs,
// microtasks, promise continuations, and emitter callbacks all execute on one
// loop, one unit of work at a time. "Concurrency" here is many causal chains
// interleaved over time on a single processing goroutine, never parallel
// execution, which is exactly what makes a single causal slot sound: the slot
// is only touched inside withSnapshot's save/set/run/restore discipline, and
// nothing preempts a callback mid-run.
//
// Queue priority per iteration: next-tick jobs, then microtasks, then macro
// work (immediates and fired timers) in arrival order.
package doublestack

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// task is one queued unit of deferred work: the user callback plus the
// snapshot captured when it was scheduled.
type task struct {
	snap *snapshot
	fn   func()
}

// Loop runs deferred callbacks cooperatively and threads the causal context
// across every scheduling boundary. Schedule work only from the goroutine
// running Run (or from callbacks the loop itself invokes); the causal slot has
// a single writer by construction, not by locking.
type Loop struct {
	id  string
	set *Settings

	mu     sync.Mutex
	ticks  []*task
	micro  []*task
	macro  []*task
	timers map[*Timer]struct{}
	wake   chan struct{}

	// cur is the causal context slot: the snapshot considered the active
	// cause for anything scheduled right now. Loop goroutine only.
	cur *snapshot
}

// NewLoop creates a loop bound to the given settings store; nil means the
// process-wide Default store.
func NewLoop(set *Settings) *Loop {
	if set == nil {
		set = Default()
	}
	return &Loop{
		id:     ulid.Make().String(),
		set:    set,
		timers: make(map[*Timer]struct{}),
		wake:   make(chan struct{}, 1),
	}
}

// ID returns the loop's instance id (a ULID assigned at construction).
func (l *Loop) ID() string { return l.id }

// Settings returns the settings store this loop reads its tunables from.
func (l *Loop) Settings() *Settings { return l.set }

// Run executes entry, then processes queued work until the loop is idle: no
// tick/micro/macro jobs pending and no armed timers. It blocks the calling
// goroutine and runs every callback on it. A panic inside a callback unwinds
// out of Run after its chain has been bound (see withSnapshot); Run is not
// reentrant.
func (l *Loop) Run(entry func()) {
	if entry != nil {
		l.mu.Lock()
		l.macro = append(l.macro, &task{fn: entry})
		l.mu.Unlock()
	}
	for {
		if t := l.next(); t != nil {
			l.dispatch(t)
			continue
		}
		l.mu.Lock()
		armed := len(l.timers) > 0
		l.mu.Unlock()
		if !armed {
			return
		}
		<-l.wake
	}
}

// next pops the highest-priority pending task, or nil when all queues are
// empty.
func (l *Loop) next() *task {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ticks) > 0 {
		t := l.ticks[0]
		l.ticks = l.ticks[1:]
		return t
	}
	if len(l.micro) > 0 {
		t := l.micro[0]
		l.micro = l.micro[1:]
		return t
	}
	if len(l.macro) > 0 {
		t := l.macro[0]
		l.macro = l.macro[1:]
		return t
	}
	return nil
}

func (l *Loop) dispatch(t *task) {
	if t.snap == nil {
		// Entry job: runs at the root with no causal context.
		t.fn()
		return
	}
	l.withSnapshot(t.snap, t.fn)
}

// withSnapshot is the shim every deferred callback runs under: set the causal
// slot, invoke, restore on every exit path. If the callback panics, the
// error's chain is bound and its trace rendered BEFORE the slot unwinds (so
// the chain is fixed even if nothing ever reads it), then the panic resumes.
// Error panic values are re-raised unchanged; non-error values are wrapped in
// *PanicError so the side table has an identity to key on.
func (l *Loop) withSnapshot(s *snapshot, fn func()) {
	prev := l.cur
	l.cur = s
	defer func() {
		if v := recover(); v != nil {
			err := errorFromPanic(v)
			l.bindHere(err, true)
			l.cur = prev
			panic(err)
		}
		l.cur = prev
	}()
	fn()
}

// bindHere associates err with a snapshot captured right now, parented on the
// current causal slot. force renders the trace eagerly; the shim path wants
// that so the text is fixed before the context unwinds.
func (l *Loop) bindHere(err error, force bool) {
	b := bindChain(err, func() *snapshot {
		return newSnapshot(l.cur, l.set.ChainDepthLimit())
	}, l.set)
	if b != nil && force {
		b.render(err)
	}
}

// TraceError associates err with the causal chain active at the call site and
// returns err unchanged. This is the entry point for error-return flows that
// never panic: bind the chain where the error is detected, hand the error up
// as usual, and Stacktrace at the top still sees every scheduling hop.
// nil passes through. Errors with non-comparable dynamic types cannot be
// tracked and also pass through untouched.
func (l *Loop) TraceError(err error) error {
	if err == nil {
		return nil
	}
	l.bindHere(err, false)
	return err
}

// SetImmediate schedules fn to run after already-queued macro work, capturing
// the scheduling stack as a boundary.
func (l *Loop) SetImmediate(fn func()) {
	snap := newSnapshot(l.cur, l.set.ChainDepthLimit())
	l.post(&l.macro, &task{snap: snap, fn: fn})
}

// NextTick schedules fn ahead of microtasks and macro work, capturing the
// scheduling stack as a boundary.
func (l *Loop) NextTick(fn func()) {
	snap := newSnapshot(l.cur, l.set.ChainDepthLimit())
	l.post(&l.ticks, &task{snap: snap, fn: fn})
}

// QueueMicrotask schedules fn on the microtask queue (after ticks, before
// macro work), capturing the scheduling stack as a boundary. Promise
// continuations use this queue internally.
func (l *Loop) QueueMicrotask(fn func()) {
	snap := newSnapshot(l.cur, l.set.ChainDepthLimit())
	l.post(&l.micro, &task{snap: snap, fn: fn})
}

// post appends t to the given queue and wakes Run if it is blocked on timers.
func (l *Loop) post(q *[]*task, t *task) {
	l.mu.Lock()
	*q = append(*q, t)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}
