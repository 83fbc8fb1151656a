package profiler

// Settings configure a [Profiler] at construction and via
// [Profiler.ChangeSettings].
type Settings struct {
	// EnableTimerQueries enables/disables timing globally.
	//
	// When false, no timer queries are emitted and no query sets are
	// allocated, but scope structure is still tracked: results come back with
	// the full tree shape and absent durations. Since all GPU resource
	// creation is lazy, this is an effective way to disable profiling at
	// runtime without special build configurations.
	EnableTimerQueries bool

	// EnableDebugGroups enables debug markers for all scopes on the
	// respective encoder or pass. Useful with tools like RenderDoc.
	// Debug markers are emitted even if the device does not support timer
	// queries or EnableTimerQueries is false.
	EnableDebugGroups bool

	// MaxFramesInFlight bounds how many profiler frames may be queued
	// awaiting readback at a time. A frame is in flight from EndFrame until
	// its results have been consumed via ProcessFinishedFrame.
	//
	// If the bound is exceeded at EndFrame, the newest pending frame is
	// dropped. Dropping the oldest instead could starve completion forever:
	// the frames closest to finishing would keep being evicted and no result
	// would ever be produced.
	//
	// Good values are 2-4 depending on workload and GPU-CPU sync strategy.
	// Must be at least 1.
	MaxFramesInFlight int

	// ChunkCapacity is the baseline number of query slots per chunk.
	// Must be an even power of two. Chunks grow beyond this on demand when a
	// frame records more scopes than expected.
	ChunkCapacity uint32
}

// DefaultSettings returns the settings used when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		EnableTimerQueries: true,
		EnableDebugGroups:  true,
		MaxFramesInFlight:  3,
		ChunkCapacity:      256,
	}
}

// Validate checks the settings for consistency.
func (s Settings) Validate() error {
	if s.MaxFramesInFlight < 1 {
		return ErrInvalidMaxFramesInFlight
	}
	if s.ChunkCapacity < 2 || s.ChunkCapacity&(s.ChunkCapacity-1) != 0 {
		return ErrInvalidChunkCapacity
	}
	return nil
}
