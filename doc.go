// Package doublestack reconstructs causally-complete stack traces for errors
// raised inside deferred callbacks, where a plain capture only shows the frames
// of the callback itself and loses the frames of whoever scheduled it.
//
// Every scheduling boundary (a timer, an immediate, a next-tick job, a promise
// continuation, an event-listener registration) snapshots the synchronous call
// stack at scheduling time and links it to the snapshot of its own scheduler.
// When an error finally surfaces, Stacktrace renders the whole chain: the
// error's own frames, a separator line, the frames of the callback that
// scheduled it, another separator, and so on up to a configurable depth.
//
// Design tenets:
//   - Opt-in decoration, not global patching: callers create a Loop and run
//     deferred work through it; nothing in the process is replaced.
//   - Immutable snapshots: chains are safe to memoize and share; the only
//     mutation is the one-shot depth truncation right after capture.
//   - Side-table association: traces are keyed by error identity in a side
//     table, never attached as hidden state on the error value.
//   - Policy-free core: no logging, no storage, no export formats. Rendering
//     is a single replaceable function.
//
// Typical use:
//
//	loop := doublestack.NewLoop(nil)
//	loop.Run(func() {
//	    loop.SetTimeout(func() {
//	        loop.SetTimeout(func() {
//	            panic(errors.New("boom"))
//	        }, time.Millisecond)
//	    }, time.Millisecond)
//	})
//
// A recover around Run can then print doublestack.Stacktrace(err) and see all
// three segments.
package doublestack
