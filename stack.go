// stack.go — raw call-stack capture for doublestack.
//
// Design goals:
//   - Interop & correctness: use runtime.Callers + runtime.CallersFrames for
//     accurate frame resolution (handles inlining correctly).
//   - Clean output: frames that belong to this package's own files (shims,
//     capture helpers, the loop dispatcher) are filtered at capture time so a
//     merged chain never shows engine internals.
//   - Pragmatic performance: bounded depth; capture happens only at scheduling
//     boundaries and when an error is bound to a chain.
package doublestack

import (
	"fmt"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
)

// Frame represents a single call site in a captured stack.
type Frame struct {
	PC       uintptr // program counter of the call return
	File     string  // absolute file path (as provided by runtime)
	Line     int     // line number
	Function string  // fully-qualified function name (pkg.Func or recv.method)
	Runtime  bool    // call site inside the Go runtime (panic dispatch etc.)
}

// String renders the frame in the "function (file:line)" form the default
// renderer emits after its "at " prefix.
func (f Frame) String() string {
	return fmt.Sprintf("%s (%s:%d)", f.Function, f.File, f.Line)
}

// Stack is a slice of Frames from most recent call outward.
type Stack []Frame

const (
	// defaultMaxDepth bounds one synchronous capture. The chain depth limit in
	// Settings bounds the number of LINKED captures, not the frames of any
	// single capture.
	defaultMaxDepth = 64
)

// pkgSourceAnchor exists only to locate this file at runtime. It must stay
// outside the capture path: the pkgSourceDir initializer references it, and
// anchoring on captureStack (or anything internalFrame reaches) would form an
// initialization cycle.
func pkgSourceAnchor() {}

// pkgSourceDir is the directory holding this package's source files, resolved
// at init from the anchor above so the filter survives module renames and
// vendoring. Test files in the same directory are NOT considered internal:
// they are user code exercising the engine.
var pkgSourceDir = func() string {
	pc := reflect.ValueOf(pkgSourceAnchor).Pointer()
	file, _ := runtime.FuncForPC(pc).FileLine(pc)
	return filepath.Dir(file)
}()

// internalFrame reports whether fr belongs to this package's implementation
// (as opposed to user code, test code, or the runtime).
func internalFrame(fr runtime.Frame) bool {
	if fr.File == "" {
		return false
	}
	if strings.HasSuffix(fr.File, "_test.go") {
		return false
	}
	return filepath.Dir(fr.File) == pkgSourceDir
}

// captureCallers captures the current stack skipping 'skip' caller frames,
// with engine-internal frames removed. This is the capture primitive every
// scheduling boundary uses.
//
// Skip model: 0 records the caller of captureCallers as the first frame
// (internal frames between it and runtime.Callers are filtered regardless).
func captureCallers(skip int) Stack {
	return captureStack(skip+1, defaultMaxDepth)
}

// captureStack captures up to maxDepth frames, skipping 'skip' initial frames
// beyond the capture machinery itself, and resolves them via CallersFrames so
// inlined calls expand correctly.
//
// Skip accounting:
//   - +1 for runtime.Callers
//   - +1 for captureStack
//
// so skip=0 places the first candidate frame at the caller of captureStack.
// Frames from this package's own files are additionally dropped after
// resolution, so the fixed offsets never need to know how deep the engine's
// own call path happens to be.
func captureStack(skip, maxDepth int) Stack {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	pc := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pc)
	if n == 0 {
		return nil
	}
	pc = pc[:n]

	frames := runtime.CallersFrames(pc)
	out := make(Stack, 0, n)

	for {
		fr, more := frames.Next()
		if !internalFrame(fr) {
			out = append(out, Frame{
				PC:       fr.PC,
				File:     fr.File,
				Line:     fr.Line,
				Function: fr.Function,
				Runtime:  strings.HasPrefix(fr.Function, "runtime."),
			})
		}
		if !more {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
