// loop_test.go — scheduling boundaries, causal chaining, and shim discipline.
package doublestack

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// recoverRun runs entry on l and returns the error that unwound out of Run,
// or nil if the loop drained cleanly.
func recoverRun(l *Loop, entry func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = v.(error)
		}
	}()
	l.Run(entry)
	return nil
}

// chainSettings returns a fresh store with a per-test separator so counting
// tokens in rendered output cannot collide with frame text.
func chainSettings(t *testing.T, limit int) (*Settings, string) {
	t.Helper()
	sep := "--8<-- [" + t.Name() + "]"
	s := NewSettings()
	if err := s.SetSeparatorToken(sep); err != nil {
		t.Fatalf("SetSeparatorToken: %v", err)
	}
	if err := s.SetChainDepthLimit(limit); err != nil {
		t.Fatalf("SetChainDepthLimit: %v", err)
	}
	return s, sep
}

func TestRun_ProcessesEntryAndReturns(t *testing.T) {
	t.Parallel()

	l := NewLoop(NewSettings())
	ran := false
	l.Run(func() { ran = true })
	if !ran {
		t.Fatalf("entry did not run")
	}
	if l.ID() == "" {
		t.Fatalf("loop has no instance id")
	}
}

func TestRun_QueueOrdering(t *testing.T) {
	t.Parallel()

	l := NewLoop(NewSettings())
	var order []string
	l.Run(func() {
		l.SetImmediate(func() { order = append(order, "immediate") })
		l.QueueMicrotask(func() { order = append(order, "micro") })
		l.NextTick(func() { order = append(order, "tick") })
	})
	want := []string{"tick", "micro", "immediate"}
	if len(order) != len(want) {
		t.Fatalf("ran %d jobs; want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v; want %v", order, want)
		}
	}
}

func TestSetTimeout_RunsCallback(t *testing.T) {
	t.Parallel()

	l := NewLoop(NewSettings())
	fired := false
	l.Run(func() {
		l.SetTimeout(func() { fired = true }, time.Millisecond)
	})
	if !fired {
		t.Fatalf("timeout callback did not run")
	}
}

func TestNestedTimeouts_TwoBoundariesTwoSeparators(t *testing.T) {
	t.Parallel()

	set, sep := chainSettings(t, DefaultChainDepthLimit)
	l := NewLoop(set)

	err := recoverRun(l, func() {
		l.SetTimeout(func() {
			l.SetTimeout(func() {
				panic(errors.New("boom"))
			}, time.Millisecond)
		}, time.Millisecond)
	})
	if err == nil {
		t.Fatalf("expected the panic to unwind out of Run")
	}

	trace := Stacktrace(err)
	if !strings.HasPrefix(trace, "boom") {
		t.Fatalf("trace does not start with the error description:\n%s", trace)
	}
	if got := strings.Count(trace, sep); got != 2 {
		t.Fatalf("separators = %d; want 2\n%s", got, trace)
	}
}

func TestImmediateChain_SeparatorPerBoundary(t *testing.T) {
	t.Parallel()

	set, sep := chainSettings(t, DefaultChainDepthLimit)
	l := NewLoop(set)

	// Three nested boundaries, no real time involved.
	err := recoverRun(l, func() {
		l.SetImmediate(func() {
			l.SetImmediate(func() {
				l.SetImmediate(func() {
					panic(errors.New("bottom"))
				})
			})
		})
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := strings.Count(Stacktrace(err), sep); got != 3 {
		t.Fatalf("separators = %d; want 3\n%s", got, Stacktrace(err))
	}
}

func TestChainDepthLimit_TruncatesDeepChain(t *testing.T) {
	t.Parallel()

	set, sep := chainSettings(t, 2)
	l := NewLoop(set)

	var schedule func(n int)
	schedule = func(n int) {
		if n == 0 {
			panic(errors.New("deep failure"))
		}
		l.SetImmediate(func() { schedule(n - 1) })
	}

	err := recoverRun(l, func() { schedule(4) })
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := strings.Count(Stacktrace(err), sep); got != 1 {
		t.Fatalf("separators = %d; want limit-1 = 1\n%s", got, Stacktrace(err))
	}
}

func TestChainDepthLimitZero_RootOnlyTrace(t *testing.T) {
	t.Parallel()

	set, sep := chainSettings(t, 0)
	l := NewLoop(set)

	err := recoverRun(l, func() {
		l.SetImmediate(func() {
			l.SetImmediate(func() {
				panic(errors.New("unlinked"))
			})
		})
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := strings.Count(Stacktrace(err), sep); got != 0 {
		t.Fatalf("separators = %d; want 0 (no linkage recorded)\n%s", got, Stacktrace(err))
	}
}

func TestClearTimeout_CancelsBeforeFiring(t *testing.T) {
	t.Parallel()

	l := NewLoop(NewSettings())
	fired := false
	l.Run(func() {
		tm := l.SetTimeout(func() { fired = true }, 50*time.Millisecond)
		l.ClearTimeout(tm)
	})
	if fired {
		t.Fatalf("cleared timeout still fired")
	}
}

func TestSetInterval_RepeatsUntilCleared(t *testing.T) {
	t.Parallel()

	l := NewLoop(NewSettings())
	count := 0
	var tm *Timer
	l.Run(func() {
		tm = l.SetInterval(func() {
			count++
			if count == 3 {
				l.ClearInterval(tm)
			}
		}, time.Millisecond)
	})
	if count != 3 {
		t.Fatalf("interval ran %d times; want 3", count)
	}
	if !tm.Repeats() {
		t.Fatalf("interval handle does not report repeating")
	}
}

func TestTimer_CreationTraceShowsSchedulingAncestry(t *testing.T) {
	t.Parallel()

	l := NewLoop(NewSettings())
	var inner *Timer
	l.Run(func() {
		l.SetTimeout(func() {
			inner = l.SetTimeout(func() {}, time.Hour)
			inner.Stop()
		}, time.Millisecond)
	})

	trace := inner.CreationTrace()
	if len(trace) == 0 {
		t.Fatalf("empty creation trace")
	}
	boundaries := 0
	for _, e := range trace {
		if e.Boundary {
			boundaries++
		}
	}
	if boundaries != 1 {
		t.Fatalf("boundaries = %d; want 1 (scheduled one hop deep)", boundaries)
	}
	if inner.Delay() != time.Hour {
		t.Fatalf("Delay() = %v; want 1h", inner.Delay())
	}
}

func TestTraceError_BindsWithoutPanic(t *testing.T) {
	t.Parallel()

	set, sep := chainSettings(t, DefaultChainDepthLimit)
	l := NewLoop(set)

	lookupFailed := errors.New("lookup failed")
	l.Run(func() {
		l.SetTimeout(func() {
			_ = l.TraceError(lookupFailed)
		}, time.Millisecond)
	})

	if !IsTraced(lookupFailed) {
		t.Fatalf("error was not bound")
	}
	if got := strings.Count(Stacktrace(lookupFailed), sep); got != 1 {
		t.Fatalf("separators = %d; want 1", got)
	}
}

func TestPanicNonError_WrappedAsPanicError(t *testing.T) {
	t.Parallel()

	l := NewLoop(NewSettings())
	err := recoverRun(l, func() {
		l.SetImmediate(func() {
			panic("kaboom")
		})
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	v, ok := PanicValue(err)
	if !ok || v != "kaboom" {
		t.Fatalf("PanicValue = (%v, %v); want (kaboom, true)", v, ok)
	}
	if Stacktrace(err) == "" {
		t.Fatalf("wrapped panic has no trace")
	}
}

func TestCausalSlot_RestoredAfterPanic(t *testing.T) {
	t.Parallel()

	l := NewLoop(NewSettings())
	_ = recoverRun(l, func() {
		l.SetImmediate(func() {
			panic(errors.New("unwind"))
		})
	})
	if l.cur != nil {
		t.Fatalf("causal slot not restored after panic unwind")
	}
}

func TestRendererReturningEmpty_TraceIsEmpty(t *testing.T) {
	t.Parallel()

	set := NewSettings()
	if err := set.SetRenderer(func(msg, sep string, entries []Entry) string { return "" }); err != nil {
		t.Fatalf("SetRenderer: %v", err)
	}
	l := NewLoop(set)

	err := recoverRun(l, func() {
		l.SetImmediate(func() {
			panic(errors.New("silenced"))
		})
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := Stacktrace(err); got != "" {
		t.Fatalf("Stacktrace = %q; want empty string", got)
	}
}

func TestCausalParent_IsSchedulingSiteNotInterleavedWork(t *testing.T) {
	t.Parallel()

	set, sep := chainSettings(t, DefaultChainDepthLimit)
	l := NewLoop(set)

	// Two unrelated chains interleave; the failing callback's parent must be
	// its own scheduler, so exactly one separator shows up regardless of the
	// unrelated chain running in between.
	err := recoverRun(l, func() {
		l.SetImmediate(func() {
			l.SetImmediate(func() {}) // unrelated work, scheduled deeper
		})
		l.SetImmediate(func() {
			panic(errors.New("chain two"))
		})
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := strings.Count(Stacktrace(err), sep); got != 1 {
		t.Fatalf("separators = %d; want 1 (parent is the scheduling call only)\n%s", got, Stacktrace(err))
	}
}
