package profiler

import "errors"

// Profiler errors.
var (
	// ErrInvalidMaxFramesInFlight is returned when Settings.MaxFramesInFlight
	// is less than 1.
	ErrInvalidMaxFramesInFlight = errors.New("profiler: MaxFramesInFlight must be at least 1")

	// ErrInvalidChunkCapacity is returned when Settings.ChunkCapacity is not
	// an even power of two.
	ErrInvalidChunkCapacity = errors.New("profiler: ChunkCapacity must be an even power of two")

	// ErrNilBinding is returned when creating a profiler without a GPU binding.
	ErrNilBinding = errors.New("profiler: binding is nil")

	// ErrOpenScopes is returned by EndFrame and ChangeSettings while timer
	// scopes are still open.
	ErrOpenScopes = errors.New("profiler: scopes still open")

	// ErrUnresolvedQueries is returned by EndFrame when written query slots
	// were not resolved. Call ResolveQueries after closing all scopes and
	// before ending the frame.
	ErrUnresolvedQueries = errors.New("profiler: unresolved queries")

	// ErrScopeClosed is returned when closing a scope that has already been
	// closed.
	ErrScopeClosed = errors.New("profiler: scope already closed")

	// ErrStaleScope is returned when closing a scope that belongs to an
	// earlier, already ended frame.
	ErrStaleScope = errors.New("profiler: scope belongs to an ended frame")

	// ErrMisnestedScope is returned when closing a scope that is not the most
	// recently opened scope on its recording context.
	ErrMisnestedScope = errors.New("profiler: scope closed out of order")

	// ErrNilScope is returned when closing a nil scope.
	ErrNilScope = errors.New("profiler: scope is nil")

	// ErrReadbackFailed is returned by ProcessFinishedFrame when the frame's
	// asynchronous readback reported an error. The frame's resources have
	// been reclaimed; later frames are unaffected.
	ErrReadbackFailed = errors.New("profiler: query readback failed")

	// ErrNonMonotonicTimestamps marks a result whose end tick precedes its
	// start tick. Reported per scope on Result.Err, never as a frame error.
	ErrNonMonotonicTimestamps = errors.New("profiler: non-monotonic timestamp pair")

	// ErrClosed is returned when operating on a closed profiler.
	ErrClosed = errors.New("profiler: closed")
)
