// render.go — turning a flattened chain into text.
//
// Layout contract (what DefaultRenderer produces and ColorRenderer colors):
//   - first line: the error's own description
//   - one line per frame: four spaces, "at ", then "function (file:line)"
//   - the separator token verbatim, on its own line, at each chain boundary
//
// Frames from the Go runtime (panic dispatch, goroutine bootstrap) are elided:
// they carry no causal information and would smear noise between user
// segments.
//
// A renderer returning "" is a supported configuration: the trace disappears,
// nothing errors.
package doublestack

import (
	"strings"

	"github.com/fatih/color"
)

// DefaultRenderer is the renderer a fresh Settings store starts with.
func DefaultRenderer(msg, separator string, entries []Entry) string {
	var b strings.Builder
	b.WriteString(msg)
	for _, e := range entries {
		if !e.Boundary && e.Frame.Runtime {
			continue
		}
		b.WriteByte('\n')
		if e.Boundary {
			b.WriteString(separator)
			continue
		}
		b.WriteString("    at ")
		b.WriteString(e.Frame.String())
	}
	return b.String()
}

// ColorRenderer returns a renderer with DefaultRenderer's layout, ANSI-colored
// for terminals: message bold red, function names cyan, locations faint,
// separators yellow. Honors NO_COLOR via the color package's global toggle.
func ColorRenderer() RendererFunc {
	var (
		msgC = color.New(color.FgRed, color.Bold)
		fnC  = color.New(color.FgCyan)
		locC = color.New(color.Faint)
		sepC = color.New(color.FgYellow)
	)
	return func(msg, separator string, entries []Entry) string {
		var b strings.Builder
		b.WriteString(msgC.Sprint(msg))
		for _, e := range entries {
			if !e.Boundary && e.Frame.Runtime {
				continue
			}
			b.WriteByte('\n')
			if e.Boundary {
				b.WriteString(sepC.Sprint(separator))
				continue
			}
			b.WriteString("    at ")
			b.WriteString(fnC.Sprint(e.Frame.Function))
			b.WriteString(locC.Sprintf(" (%s:%d)", e.Frame.File, e.Frame.Line))
		}
		return b.String()
	}
}
