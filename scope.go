package profiler

import (
	"github.com/gogpu/wgpu-profiler/gpu"
)

// rootHandle is the parent handle of top-level scopes.
const rootHandle uint64 = 0

// queryPairState tracks how far a scope's reserved slot pair has been used.
type queryPairState int

const (
	// pairReserved is the transitional state right after reservation.
	pairReserved queryPairState = iota

	// pairReservedForPass means no manual timestamp writes happen; the
	// graphics API writes both slots at pass boundaries.
	pairReservedForPass

	// pairStartWritten means the start slot is stamped, the end slot is not.
	pairStartWritten

	// pairBothWritten means both slots are stamped.
	pairBothWritten
)

// TimerScope is an in-flight timer scope.
//
// Returned by [Profiler.BeginScope] and [Profiler.BeginPassScope]; must be
// closed with [Profiler.EndScope]. The scope package provides guards that
// pair Begin/End for the common defer-driven case.
type TimerScope struct {
	label string

	// pid and track identify the owning process and recording context in
	// exported traces. Scopes inherit the track of their parent; each root
	// gets a fresh track id.
	pid   int
	track uint64

	// frameSeq stamps the frame the scope was opened in, so closing a scope
	// from an already ended frame can be rejected.
	frameSeq uint64

	handle uint64
	parent uint64

	// chunk is nil when the scope carries no timing (queries disabled or
	// unsupported); the scope still appears in results for structure.
	chunk     *queryChunk
	startSlot uint32
	pairState queryPairState

	hasDebugGroup bool
	closed        bool
}

// Label returns the label the scope was opened with.
func (s *TimerScope) Label() string { return s.label }

// Timed reports whether the scope carries a timer query.
func (s *TimerScope) Timed() bool { return s != nil && s.chunk != nil }

// PassTimestampWrites describes the reserved slot pair of a pass scope for
// the graphics API to fill in at pass boundaries. Use it to populate the
// timestamp-writes field of a render or compute pass descriptor.
type PassTimestampWrites struct {
	QuerySet gpu.QuerySet

	// BeginIndex receives the timestamp at the beginning of the pass.
	BeginIndex uint32

	// EndIndex receives the timestamp at the end of the pass.
	EndIndex uint32
}

// PassTimestampWrites returns the scope's reserved pass timestamp writes.
// Returns false for scopes that were not opened with BeginPassScope or that
// carry no timing.
//
// Use the result for a single render/compute pass only; reusing it would
// overwrite the scope's timestamps.
func (s *TimerScope) PassTimestampWrites() (PassTimestampWrites, bool) {
	if s == nil || s.chunk == nil || s.pairState != pairReservedForPass {
		return PassTimestampWrites{}, false
	}
	return PassTimestampWrites{
		QuerySet:   s.chunk.set,
		BeginIndex: s.startSlot,
		EndIndex:   s.startSlot + 1,
	}, true
}
