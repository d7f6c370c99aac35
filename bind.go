// bind.go — the identity-keyed side table from errors to causal chains.
//
// The chain cache lives OUTSIDE the error values: errors stay exactly what
// user code raised, and the association is keyed by error identity in a
// process-wide table. First bind wins; a bound error propagating through
// further shims is never re-parented. Bindings are never evicted.
//
// Comparability: map keys must have comparable dynamic types. Pointer-typed
// errors (the overwhelmingly common case in Go) always qualify; an error whose
// dynamic type is a non-comparable struct cannot be keyed and is simply left
// untracked rather than wrapped, so it still propagates unchanged.
package doublestack

import (
	"reflect"
	"sync"
)

// binding ties one error to its snapshot chain and memoizes the rendered text.
type binding struct {
	snap *snapshot
	set  *Settings

	once sync.Once
	text string
}

// render computes the final trace once and caches it. Shims call this eagerly
// on panic so the text is fixed before the causal context unwinds; later
// Stacktrace calls just read the cache.
func (b *binding) render(err error) string {
	b.once.Do(func() {
		b.text = b.set.Renderer()(err.Error(), b.set.SeparatorToken(), b.snap.flatten())
	})
	return b.text
}

// chains maps error identity to *binding. Write-once per error, read-mostly
// afterward, so sync.Map fits.
var chains sync.Map

func bindable(err error) bool {
	t := reflect.TypeOf(err)
	return t != nil && t.Comparable()
}

// bindChain associates err with the snapshot mk produces. mk runs only when
// err has no binding yet. Returns the surviving binding, or nil when err
// cannot be tracked.
func bindChain(err error, mk func() *snapshot, set *Settings) *binding {
	if err == nil || !bindable(err) {
		return nil
	}
	if b, ok := chains.Load(err); ok {
		return b.(*binding)
	}
	b := &binding{snap: mk(), set: set}
	if prev, loaded := chains.LoadOrStore(err, b); loaded {
		return prev.(*binding)
	}
	return b
}

func lookupBinding(err error) *binding {
	if err == nil || !bindable(err) {
		return nil
	}
	if b, ok := chains.Load(err); ok {
		return b.(*binding)
	}
	return nil
}

// Stacktrace returns the rendered causal trace for err. A bound error renders
// its cached chain (computed at most once). An error no shim ever saw gets a
// fresh root-only capture at this call site, using the Default settings, so
// the function is total: any non-nil error yields a trace.
func Stacktrace(err error) string {
	if err == nil {
		return ""
	}
	if b := lookupBinding(err); b != nil {
		return b.render(err)
	}
	if b := bindChain(err, func() *snapshot {
		return newSnapshot(nil, Default().ChainDepthLimit())
	}, Default()); b != nil {
		return b.render(err)
	}
	// Untrackable identity: render a one-off root capture without caching.
	snap := newSnapshot(nil, Default().ChainDepthLimit())
	return Default().Renderer()(err.Error(), Default().SeparatorToken(), snap.flatten())
}

// ChainOf returns a copy of the flattened, separator-annotated chain bound to
// err, or nil when err has none.
func ChainOf(err error) []Entry {
	if b := lookupBinding(err); b != nil {
		return cloneEntries(b.snap.flatten())
	}
	return nil
}
