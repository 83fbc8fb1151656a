package profiler

import (
	"sort"
	"time"
)

// Result is one node of a reconstructed timing tree: an immutable snapshot
// of a closed scope with its nested children in original open order.
type Result struct {
	// Label is the label the scope was opened with.
	Label string

	// PID is the id of the process that recorded the scope.
	PID int

	// TrackID identifies the recording context the scope was opened on.
	// Children share their parent's track; each root scope starts a new one.
	TrackID uint64

	// Start and End are the scope boundaries converted to nanoseconds.
	// The absolute epoch is the GPU clock's and has no defined meaning;
	// only differences and relative placement are meaningful.
	// Valid only when Timed is true.
	Start, End time.Duration

	// Timed is false when the scope carried no timing (queries disabled or
	// unsupported) or when reconstruction failed for this scope. The node is
	// still present so the tree keeps its full shape.
	Timed bool

	// Err holds a per-scope reconstruction anomaly such as
	// ErrNonMonotonicTimestamps. Never fatal to the rest of the tree.
	Err error

	// Children are the scopes opened while this one was open.
	Children []Result
}

// Duration returns End minus Start, or zero for untimed nodes.
func (r Result) Duration() time.Duration {
	if !r.Timed {
		return 0
	}
	return r.End - r.Start
}

// reconstructResults rebuilds the hierarchical result tree of a ready frame.
// period is the device's current ticks→nanoseconds factor, supplied per
// frame because some devices adjust it while running.
func reconstructResults(f *pendingFrame, period float32) []Result {
	return buildResults(f, float64(period), rootHandle)
}

func buildResults(f *pendingFrame, period float64, parent uint64) []Result {
	scopes := f.byParent[parent]
	if len(scopes) == 0 {
		return nil
	}

	// Handles are assigned from a monotonic counter at open time, so sorting
	// by handle restores sibling open order regardless of close order.
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].handle < scopes[j].handle })

	results := make([]Result, 0, len(scopes))
	for _, s := range scopes {
		r := Result{
			Label:    s.label,
			PID:      s.pid,
			TrackID:  s.track,
			Children: buildResults(f, period, s.handle),
		}

		if start, end, ok := scopeTicks(f, s); ok {
			if end < start {
				r.Err = ErrNonMonotonicTimestamps
				Logger().Warn("profiler: non-monotonic timestamps",
					"label", s.label, "start", start, "end", end)
			} else {
				r.Start = time.Duration(float64(start) * period)
				r.End = time.Duration(float64(end) * period)
				r.Timed = true
			}
		}

		results = append(results, r)
	}
	return results
}

// scopeTicks looks up the raw start/end values of a scope's slot pair.
// Returns false for untimed scopes and for slots the readback did not cover.
func scopeTicks(f *pendingFrame, s *TimerScope) (start, end uint64, ok bool) {
	if s.chunk == nil {
		return 0, 0, false
	}
	ticks := f.ticks[s.chunk]
	if uint64(len(ticks)) < uint64(s.startSlot)+2 {
		return 0, 0, false
	}
	return ticks[s.startSlot], ticks[s.startSlot+1], true
}
