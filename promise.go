// promise.go — deferred values and continuation scheduling boundaries.
//
// A Promise is the constructor-shaped boundary: creating one captures the
// construction stack, and every Then/Catch/Finally registration captures its
// own stack as a fresh boundary. Continuations run as loop microtasks under
// the snapshot of their registration, so an error surfacing three thens deep
// still renders the whole scheduling ancestry.
//
// Settlement is once-only; resolving with another Promise adopts its outcome.
// A handler panic becomes the rejection of the next promise in the chain (its
// chain is bound first), mirroring how deferred-value platforms convert a
// throw inside a continuation.
package doublestack

import (
	"errors"
	"sync"
)

type promiseState uint8

const (
	statePending promiseState = iota
	stateFulfilled
	stateRejected
)

// Promise is a single-assignment deferred value bound to a loop.
type Promise struct {
	loop *Loop
	snap *snapshot

	mu       sync.Mutex
	state    promiseState
	value    any
	cause    error
	handlers []*reaction
}

// reaction is one registered continuation: where to run (snap), what to run,
// and which promise receives the outcome. A reaction with nil handlers and a
// non-nil next is a pass-through (used for adoption and bare propagation).
type reaction struct {
	snap        *snapshot
	onFulfilled func(any) (any, error)
	onRejected  func(error) (any, error)
	next        *Promise
}

// NewPromise creates a promise and runs executor synchronously, exactly like
// an object-constructing call on a deferred-value platform. resolve and
// reject settle the promise (first call wins); a panic inside the executor
// rejects it.
func NewPromise(l *Loop, executor func(resolve func(any), reject func(error))) *Promise {
	p := &Promise{
		loop: l,
		snap: newSnapshot(l.cur, l.set.ChainDepthLimit()),
	}
	if executor != nil {
		func() {
			defer func() {
				if v := recover(); v != nil {
					p.reject(errorFromPanic(v))
				}
			}()
			executor(p.resolve, p.reject)
		}()
	}
	return p
}

// Resolved returns a promise already fulfilled with v.
func Resolved(l *Loop, v any) *Promise {
	return NewPromise(l, func(resolve func(any), _ func(error)) { resolve(v) })
}

// Rejected returns a promise already rejected with err.
func Rejected(l *Loop, err error) *Promise {
	return NewPromise(l, func(_ func(any), reject func(error)) { reject(err) })
}

// Then registers a fulfillment continuation and returns the next promise in
// the chain. The call site is a scheduling boundary. A nil fn passes the
// value through.
func (p *Promise) Then(fn func(v any) (any, error)) *Promise {
	return p.chain(fn, nil)
}

// Catch registers a rejection continuation and returns the next promise.
// A nil fn passes the rejection through.
func (p *Promise) Catch(fn func(err error) (any, error)) *Promise {
	return p.chain(nil, fn)
}

// Finally runs fn on either outcome without changing it.
func (p *Promise) Finally(fn func()) *Promise {
	return p.chain(
		func(v any) (any, error) {
			fn()
			return v, nil
		},
		func(err error) (any, error) {
			fn()
			return nil, err
		},
	)
}

func (p *Promise) chain(onFulfilled func(any) (any, error), onRejected func(error) (any, error)) *Promise {
	snap := newSnapshot(p.loop.cur, p.loop.set.ChainDepthLimit())
	next := &Promise{loop: p.loop, snap: snap}
	p.subscribe(&reaction{
		snap:        snap,
		onFulfilled: onFulfilled,
		onRejected:  onRejected,
		next:        next,
	})
	return next
}

// subscribe queues r if p is pending, or schedules it right away if p has
// already settled.
func (p *Promise) subscribe(r *reaction) {
	p.mu.Lock()
	if p.state == statePending {
		p.handlers = append(p.handlers, r)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.schedule(r)
}

// schedule posts r to the microtask queue under its registration snapshot.
func (p *Promise) schedule(r *reaction) {
	p.loop.post(&p.loop.micro, &task{snap: r.snap, fn: func() { p.runReaction(r) }})
}

func (p *Promise) runReaction(r *reaction) {
	p.mu.Lock()
	state, value, cause := p.state, p.value, p.cause
	p.mu.Unlock()

	if state == stateFulfilled {
		if r.onFulfilled == nil {
			r.next.resolve(value)
			return
		}
		out, err := guardHandler(func() (any, error) { return r.onFulfilled(value) })
		if err != nil {
			r.next.reject(err)
			return
		}
		r.next.resolve(out)
		return
	}

	if r.onRejected == nil {
		r.next.reject(cause)
		return
	}
	out, err := guardHandler(func() (any, error) { return r.onRejected(cause) })
	if err != nil {
		r.next.reject(err)
		return
	}
	r.next.resolve(out)
}

// guardHandler converts a handler panic into an error return; reject binds
// the chain afterward while the reaction's snapshot is still the active
// context.
func guardHandler(fn func() (any, error)) (out any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = errorFromPanic(v)
		}
	}()
	return fn()
}

func (p *Promise) resolve(v any) {
	if inner, ok := v.(*Promise); ok && inner != nil {
		// Adopt the inner promise's eventual outcome.
		inner.subscribe(&reaction{snap: p.snap, next: p})
		return
	}
	p.settle(stateFulfilled, v, nil)
}

func (p *Promise) reject(err error) {
	if err == nil {
		err = errors.New("promise rejected")
	}
	p.loop.bindHere(err, false)
	p.settle(stateRejected, nil, err)
}

func (p *Promise) settle(state promiseState, v any, err error) {
	p.mu.Lock()
	if p.state != statePending {
		p.mu.Unlock()
		return
	}
	p.state = state
	p.value = v
	p.cause = err
	hs := p.handlers
	p.handlers = nil
	p.mu.Unlock()

	for _, r := range hs {
		p.schedule(r)
	}
}

// Settled reports whether the promise has an outcome yet.
func (p *Promise) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != statePending
}

// Result returns the outcome. ok is false while the promise is pending.
func (p *Promise) Result() (v any, err error, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == statePending {
		return nil, nil, false
	}
	return p.value, p.cause, true
}

// CreationTrace returns the separator-annotated frames captured when the
// promise was constructed. The returned slice is a copy.
func (p *Promise) CreationTrace() []Entry {
	return cloneEntries(p.snap.flatten())
}
