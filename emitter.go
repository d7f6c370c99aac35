// emitter.go — event-listener scheduling boundaries.
//
// Registering a listener is a scheduling boundary: the stack at On/Once is
// captured and every later invocation of that listener runs under it. The
// registry keeps the shim and the original side by side so the two
// transparency requirements hold:
//   - Listeners() returns the ORIGINAL callbacks, in registration order.
//   - Off matches by original-callback identity even though emission runs
//     shims.
//
// Identity is the function's code pointer (reflect.Value.Pointer), the same
// convention Go emitter libraries use. Two distinct instances of one closure
// share a code pointer; Off removes the earliest matching registration.
package doublestack

import (
	"reflect"
	"sync"
)

// Listener is an event callback.
type Listener func(args ...any)

type listenerReg struct {
	fn   Listener
	id   uintptr
	snap *snapshot
	once bool
}

// Emitter dispatches named events through a loop's causal machinery.
// Emit runs listeners synchronously on the calling goroutine; call it from
// loop callbacks (or the Run entry) so the causal slot has a single writer.
type Emitter struct {
	loop *Loop

	mu     sync.Mutex
	events map[string][]*listenerReg
}

// NewEmitter creates an emitter bound to l.
func NewEmitter(l *Loop) *Emitter {
	return &Emitter{
		loop:   l,
		events: make(map[string][]*listenerReg),
	}
}

func listenerID(fn Listener) uintptr {
	return reflect.ValueOf(fn).Pointer()
}

// On registers fn for event. The current stack becomes the listener's causal
// snapshot, parented on the active context.
func (e *Emitter) On(event string, fn Listener) {
	e.register(event, fn, false)
}

// Once registers fn to run at most once; the registration is removed before
// the listener is invoked.
func (e *Emitter) Once(event string, fn Listener) {
	e.register(event, fn, true)
}

func (e *Emitter) register(event string, fn Listener, once bool) {
	if fn == nil {
		return
	}
	reg := &listenerReg{
		fn:   fn,
		id:   listenerID(fn),
		snap: newSnapshot(e.loop.cur, e.loop.set.ChainDepthLimit()),
		once: once,
	}
	e.mu.Lock()
	e.events[event] = append(e.events[event], reg)
	e.mu.Unlock()
}

// Off removes the earliest registration of fn for event, matching by the
// original callback's identity. Unknown listeners are a no-op.
func (e *Emitter) Off(event string, fn Listener) {
	if fn == nil {
		return
	}
	id := listenerID(fn)
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.events[event]
	for i, reg := range regs {
		if reg.id == id {
			e.events[event] = append(regs[:i:i], regs[i+1:]...)
			if len(e.events[event]) == 0 {
				delete(e.events, event)
			}
			return
		}
	}
}

// RemoveAll drops every listener for event.
func (e *Emitter) RemoveAll(event string) {
	e.mu.Lock()
	delete(e.events, event)
	e.mu.Unlock()
}

// Listeners returns the original callbacks registered for event, in
// registration order. The shims the emitter runs internally never leak out.
func (e *Emitter) Listeners(event string) []Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	regs := e.events[event]
	if len(regs) == 0 {
		return nil
	}
	out := make([]Listener, len(regs))
	for i, reg := range regs {
		out[i] = reg.fn
	}
	return out
}

// ListenerCount returns the number of listeners registered for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events[event])
}

// Emit invokes every listener for event in registration order, each under the
// snapshot captured at its registration. Returns whether any listener ran.
// A panic in a listener is bound and re-raised by the shim; later listeners
// do not run (the error is never swallowed).
func (e *Emitter) Emit(event string, args ...any) bool {
	e.mu.Lock()
	regs := e.events[event]
	if len(regs) == 0 {
		e.mu.Unlock()
		return false
	}
	run := make([]*listenerReg, len(regs))
	copy(run, regs)
	// Once-registrations disappear before their listener is invoked.
	kept := regs[:0:0]
	for _, reg := range regs {
		if !reg.once {
			kept = append(kept, reg)
		}
	}
	if len(kept) == 0 {
		delete(e.events, event)
	} else {
		e.events[event] = kept
	}
	e.mu.Unlock()

	for _, reg := range run {
		fn := reg.fn
		e.loop.withSnapshot(reg.snap, func() {
			fn(args...)
		})
	}
	return true
}
