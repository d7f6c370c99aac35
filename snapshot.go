// snapshot.go — the immutable snapshot chain and its flattening cache.
//
// A snapshot is taken once per scheduling boundary (and once per bound error).
// It records the synchronous stack of the scheduling call, a monotonically
// increasing id, a link to the snapshot that was the active causal context at
// capture time, and its distance from the root of the chain.
//
// Invariants:
//   - Snapshots are immutable after construction, with one exception: the
//     depth-limiting step runs exactly once, immediately after capture, and
//     only ever REMOVES a parent link. A severed link is never restored.
//   - flatten is a pure function of the chain's contents and is memoized
//     per snapshot (sync.Once); repeated calls return the identical slice.
package doublestack

import (
	"sync"
	"sync/atomic"
)

// snapshotSeq issues process-wide snapshot ids.
var snapshotSeq atomic.Uint64

// Entry is one element of a flattened causal chain: either a captured frame
// or a chain-boundary marker. Boundary entries carry no frame; renderers
// substitute the configured separator token for them.
type Entry struct {
	Frame    Frame
	Boundary bool
}

type snapshot struct {
	id     uint64
	frames Stack
	parent *snapshot
	depth  int

	flattenOnce sync.Once
	flat        []Entry
}

// newSnapshot captures the caller's stack and links it under parent, then
// applies the depth limit. Engine frames are already filtered by the capture
// layer, so no skip bookkeeping is needed here.
//
// Generation counting: the new snapshot is generation 1. When the walk reaches
// the limit-th generation it severs THAT snapshot's parent link, bounding both
// memory and render cost for long-lived chains (a timer that re-arms itself
// forever would otherwise grow without bound). limit == 0 records no linkage
// at all: the snapshot is always a root.
func newSnapshot(parent *snapshot, limit int) *snapshot {
	s := &snapshot{
		id:     snapshotSeq.Add(1),
		frames: captureCallers(0),
	}
	if limit <= 0 {
		return s
	}
	s.parent = parent
	if parent != nil {
		s.depth = parent.depth + 1
	}

	anc := s
	for gen := 1; anc != nil; gen++ {
		if gen == limit {
			anc.parent = nil
			break
		}
		anc = anc.parent
	}
	return s
}

// flatten returns the separator-annotated frame sequence for the whole chain:
// this snapshot's own frames, then for each ancestor a boundary marker
// followed by the ancestor's frames. Roots flatten to their own frames with no
// marker.
//
// The result is computed at most once and cached; the chain is immutable by
// the time anything flattens it, so the cache never needs invalidation.
// Callers must treat the returned slice as read-only.
func (s *snapshot) flatten() []Entry {
	s.flattenOnce.Do(func() {
		var parentFlat []Entry
		if s.parent != nil {
			parentFlat = s.parent.flatten()
		}

		n := len(s.frames)
		if parentFlat != nil {
			n += 1 + len(parentFlat)
		}
		out := make([]Entry, 0, n)
		for _, fr := range s.frames {
			out = append(out, Entry{Frame: fr})
		}
		if parentFlat != nil {
			out = append(out, Entry{Boundary: true})
			out = append(out, parentFlat...)
		}
		s.flat = out
	})
	return s.flat
}

// cloneEntries returns a defensive copy for surfaces that hand entries to
// callers (handles, ChainOf). The memoized slice itself stays private.
func cloneEntries(in []Entry) []Entry {
	if len(in) == 0 {
		return nil
	}
	out := make([]Entry, len(in))
	copy(out, in)
	return out
}
