// Package gpu defines the narrow interface the profiler needs from a
// graphics-API binding: creating timestamp query sets, writing timestamps
// during command recording, resolving query results into a readable buffer,
// and mapping that buffer asynchronously.
//
// The profiler core never talks to a GPU API directly. Implementations of
// [Binding] live in subpackages (wgpuquery for gogpu/wgpu, virtualgpu for a
// CPU-simulated device) and are selected either directly or through the
// registry in this package.
package gpu

import "errors"

// Common binding errors.
var (
	// ErrBindingNotAvailable is returned when a requested binding is not available.
	ErrBindingNotAvailable = errors.New("gpu: binding not available")

	// ErrTimerQueriesUnsupported is returned when the device has no timestamp
	// query support at all.
	ErrTimerQueriesUnsupported = errors.New("gpu: timer queries not supported")

	// ErrQuerySetDestroyed is returned when operations reference a destroyed query set.
	ErrQuerySetDestroyed = errors.New("gpu: query set destroyed")

	// ErrMapAborted is returned to MapAsync callbacks when a pending map was
	// cancelled (buffer unmapped or destroyed before completion).
	ErrMapAborted = errors.New("gpu: buffer map aborted")

	// ErrDeviceLost is returned to MapAsync callbacks when the device failed.
	ErrDeviceLost = errors.New("gpu: device lost")
)

// DefaultMaxQuerySetSize is assumed when a binding reports no limit of its own.
// Matches the WebGPU maximum for a single query set.
const DefaultMaxQuerySetSize uint32 = 8192

// Capabilities reports what timer query support a binding's device offers.
type Capabilities struct {
	// TimerQueries is true if timestamps can be written on command encoders.
	// When false the profiler degrades to structure-only tracking: scopes are
	// recorded but carry no timing.
	TimerQueries bool

	// TimerQueriesInPasses is true if timestamps can also be written inside
	// render and compute passes. Strictly stronger than TimerQueries; when
	// false, only whole-encoder-level timing is possible.
	TimerQueriesInPasses bool

	// MaxQuerySetSize is the largest query set the device can create.
	// Zero means DefaultMaxQuerySetSize.
	MaxQuerySetSize uint32
}

// Binding is the surface the profiler requires from a graphics API.
//
// Implementations must be safe for concurrent use: the profiler calls
// CreateQuerySet under its own locks, but QuerySet methods may be invoked
// from multiple recording goroutines.
type Binding interface {
	// Capabilities reports the device's timer query support. Called once at
	// profiler construction; the answer must not change afterwards.
	Capabilities() Capabilities

	// TimestampPeriod returns the current nanoseconds-per-tick conversion
	// factor. Some devices converge on a period while running, so the
	// profiler queries this per frame and never caches it.
	TimestampPeriod() float32

	// CreateQuerySet creates a timestamp query set of the given capacity
	// together with its backing readback storage.
	CreateQuerySet(capacity uint32) (QuerySet, error)
}

// QuerySet is a fixed-capacity block of timestamp query slots plus the
// buffer their resolved values are copied into.
type QuerySet interface {
	// Capacity returns the number of slots in the set.
	Capacity() uint32

	// Resolve records commands on rec that copy the raw values of slots
	// [first, first+count) into the set's readback storage. The copy executes
	// when the recorded commands are submitted; Resolve itself never blocks.
	Resolve(rec Recorder, first, count uint32)

	// MapAsync asynchronously maps the readback storage for slots
	// [first, first+count) and invokes done exactly once with the raw tick
	// values, or with a non-nil error (ErrMapAborted, ErrDeviceLost, ...).
	// done may be invoked from an arbitrary goroutine; callers must treat it
	// as concurrent with everything else.
	MapAsync(first, count uint32, done func(ticks []uint64, err error))

	// Unmap releases the mapping, cancelling a still-pending MapAsync.
	// Must be called before the set is reused for another frame.
	Unmap()

	// Destroy releases the query set and its readback storage.
	Destroy()
}

// Recorder is a command-recording context supplied by the application:
// a command encoder, render pass, or compute pass.
type Recorder interface {
	// IsPass returns true for render/compute passes and false for encoders.
	// Writing timestamps inside a pass requires
	// Capabilities.TimerQueriesInPasses.
	IsPass() bool

	// WriteTimestamp records a command that stamps the given slot of qs
	// with the GPU clock at execution time.
	WriteTimestamp(qs QuerySet, index uint32)

	// PushDebugGroup opens a cosmetic label on the recording context.
	PushDebugGroup(label string)

	// PopDebugGroup closes the most recent debug group.
	PopDebugGroup()
}
