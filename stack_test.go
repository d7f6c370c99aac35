// stack_test.go — verification of capture semantics and internal-frame
// filtering.
package doublestack

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// --- Helpers to build a known call chain -------------------------------------

func stackGrab() Stack {
	return captureCallers(0)
}

func stackTestLevel2() Stack {
	// stackGrab is test code, so it is recorded; the engine's own capture
	// helpers below it are not. The extra level keeps a known frame between
	// capture and the assertion sites.
	return stackGrab()
}

func stackTestLevel1() Stack {
	return stackTestLevel2()
}

// --- Tests -------------------------------------------------------------------

func TestPkgSourceDir_ResolvesThisPackagesDirectory(t *testing.T) {
	t.Parallel()

	// The anchor must resolve to a real source file in this directory, not an
	// autogenerated wrapper; this file lives alongside it.
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("runtime.Caller failed")
	}
	if pkgSourceDir == "" {
		t.Fatalf("pkgSourceDir is empty")
	}
	if got, want := pkgSourceDir, filepath.Dir(file); got != want {
		t.Fatalf("pkgSourceDir = %q; want %q", got, want)
	}
}

func TestCaptureStack_UsesDefaultWhenMaxDepthZero(t *testing.T) {
	t.Parallel()

	s := captureStack(0, 0)
	if len(s) == 0 {
		t.Fatalf("expected non-empty stack when maxDepth=0 (default)")
	}
	if len(s) > defaultMaxDepth {
		t.Fatalf("stack length exceeds defaultMaxDepth: len=%d default=%d", len(s), defaultMaxDepth)
	}
}

func TestCaptureStack_RespectsMaxDepthLimit(t *testing.T) {
	t.Parallel()

	const limit = 3
	s := captureStack(0, limit)
	if len(s) == 0 {
		t.Fatalf("expected some frames with small limit")
	}
	if len(s) > limit {
		t.Fatalf("expected <= %d frames; got %d", limit, len(s))
	}
}

func TestCaptureCallers_FirstFrameIsTestCode(t *testing.T) {
	t.Parallel()

	s := stackTestLevel1()
	if len(s) == 0 {
		t.Fatalf("empty stack")
	}
	if !strings.HasSuffix(s[0].Function, "stackGrab") {
		t.Fatalf("expected first frame to be stackGrab (test code is never filtered); got %q", s[0].Function)
	}
}

func TestCaptureCallers_FiltersEngineFrames(t *testing.T) {
	t.Parallel()

	s := stackTestLevel1()
	for i, fr := range s {
		if strings.Contains(fr.Function, "captureStack") || strings.Contains(fr.Function, "captureCallers") {
			t.Fatalf("frame %d leaks engine internals: %q", i, fr.Function)
		}
	}
}

func TestCaptureCallers_ReturnsNilWhenAllFramesSkipped(t *testing.T) {
	t.Parallel()

	const absurdSkip = 1 << 20
	if s := captureStack(absurdSkip, 16); s != nil {
		t.Fatalf("expected nil stack for absurd skip; got len=%d", len(s))
	}
}

func TestStack_MetadataPresence(t *testing.T) {
	t.Parallel()

	s := stackTestLevel1()
	if len(s) == 0 {
		t.Fatalf("empty stack")
	}
	maxCheck := len(s)
	if maxCheck > 5 {
		maxCheck = 5
	}
	for i := 0; i < maxCheck; i++ {
		fr := s[i]
		if fr.PC == 0 {
			t.Fatalf("frame %d has zero PC", i)
		}
		if fr.Function == "" {
			t.Fatalf("frame %d has empty Function", i)
		}
		if fr.File == "" {
			t.Fatalf("frame %d has empty File", i)
		}
		if fr.Line <= 0 {
			t.Fatalf("frame %d has non-positive Line: %d", i, fr.Line)
		}
	}
}

func TestFrame_String(t *testing.T) {
	t.Parallel()

	fr := Frame{Function: "pkg.Fn", File: "/tmp/x.go", Line: 42}
	if got, want := fr.String(), "pkg.Fn (/tmp/x.go:42)"; got != want {
		t.Fatalf("Frame.String() = %q; want %q", got, want)
	}
}
