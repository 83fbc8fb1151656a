package profiler

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu-profiler/gpu"
)

// Profiler manages timer scopes, query chunks and the multi-frame readback
// pipeline for one device. An arbitrary number of independent profiler
// instances can coexist; they share nothing.
//
// None of the public operations block waiting on the GPU. The only
// asynchronous input is the binding's map-completion notification, which is
// queued and applied during EndFrame or ProcessFinishedFrame.
//
// Recording operations (BeginScope, EndScope, BeginPassScope) are safe to
// call concurrently from multiple goroutines sharing one frame. Pipeline
// operations (ResolveQueries, EndFrame, ProcessFinishedFrame,
// ChangeSettings, Close) serialize on an internal mutex and are expected to
// be driven once per frame by the application's frame loop.
type Profiler struct {
	binding gpu.Binding
	caps    gpu.Capabilities
	alloc   *chunkAllocator

	settings atomic.Pointer[Settings]

	// active is the frame currently accepting scopes.
	active atomic.Pointer[activeFrame]

	// mu serializes pipeline mutation: the pending queue, frame swaps,
	// completion application, settings swaps.
	mu      sync.Mutex
	pending []*pendingFrame
	closed  bool

	// completions is the handoff queue for binding callbacks, which may fire
	// on arbitrary driver goroutines and must not touch pipeline state.
	completionsMu sync.Mutex
	completions   []completion

	openScopes atomic.Int32
	nextHandle atomic.Uint64
	nextTrack  atomic.Uint64
	frameSeq   atomic.Uint64

	// degraded is set when query set creation fails; from then on the
	// profiler silently stops emitting queries and tracks structure only.
	degraded atomic.Bool

	metrics *Metrics
	pid     int
}

// Option configures optional profiler behavior.
type Option func(*profilerOptions)

type profilerOptions struct {
	metrics *Metrics
}

// WithMetrics attaches Prometheus collectors updated by the pipeline.
// Registering them is the caller's responsibility.
func WithMetrics(m *Metrics) Option {
	return func(o *profilerOptions) {
		o.metrics = m
	}
}

// New creates a profiler on the given binding.
func New(binding gpu.Binding, settings Settings, opts ...Option) (*Profiler, error) {
	if binding == nil {
		return nil, ErrNilBinding
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	var po profilerOptions
	for _, opt := range opts {
		opt(&po)
	}

	p := &Profiler{
		binding: binding,
		caps:    binding.Capabilities(),
		alloc:   newChunkAllocator(binding, settings),
		metrics: po.metrics,
		pid:     os.Getpid(),
	}
	p.settings.Store(&settings)
	p.active.Store(newActiveFrame(p.frameSeq.Add(1)))

	if !p.caps.TimerQueries {
		Logger().Warn("profiler: device has no timer query support, timing disabled")
	}
	return p, nil
}

// Capabilities returns the binding's timer query capabilities.
func (p *Profiler) Capabilities() gpu.Capabilities { return p.caps }

// Settings returns the current settings.
func (p *Profiler) Settings() Settings { return *p.settings.Load() }

// ChangeSettings replaces the profiler's settings.
//
// Fails with ErrOpenScopes while any timer scope is open. In-flight frames
// are unaffected and still processed. Disabling timing releases the recycled
// chunk pool; scopes already opened keep the timing state that was active at
// their BeginScope call.
func (p *Profiler) ChangeSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if n := p.openScopes.Load(); n > 0 {
		return fmt.Errorf("%w: %d open", ErrOpenScopes, n)
	}
	if !settings.EnableTimerQueries {
		p.alloc.releaseFree()
	}
	p.alloc.setBaseCapacity(settings.ChunkCapacity)
	p.settings.Store(&settings)
	return nil
}

// BeginScope opens a timer scope on rec.
//
// parent must be the enclosing scope, or nil for a new root. Nesting is
// never inferred from call order: interleaved scope trees across multiple
// recording contexts sharing one frame are supported precisely because the
// parent is explicit.
//
// If rec is a pass and the device lacks in-pass timer support, or timing is
// disabled, the scope is recorded without a query: it still shows up in
// results, with an absent duration.
//
// The returned scope must be closed with EndScope, passing the same rec.
func (p *Profiler) BeginScope(rec gpu.Recorder, label string, parent *TimerScope) *TimerScope {
	s := p.beginScope(rec, label, parent, false)
	if s.chunk != nil {
		rec.WriteTimestamp(s.chunk.set, s.startSlot)
		s.pairState = pairStartWritten
	}
	if p.settings.Load().EnableDebugGroups {
		rec.PushDebugGroup(label)
		s.hasDebugGroup = true
	}
	p.active.Load().pushOpen(rec, s)
	return s
}

// BeginPassScope opens a timer scope whose timestamps are written by the
// graphics API at pass boundaries rather than by explicit commands.
// Feed [TimerScope.PassTimestampWrites] into the pass descriptor of a single
// render or compute pass, then close the scope with EndScope on enc (the
// encoder the pass was begun on).
func (p *Profiler) BeginPassScope(enc gpu.Recorder, label string, parent *TimerScope) *TimerScope {
	s := p.beginScope(enc, label, parent, true)
	if s.chunk != nil {
		s.pairState = pairReservedForPass
	}
	if p.settings.Load().EnableDebugGroups {
		enc.PushDebugGroup(label)
		s.hasDebugGroup = true
	}
	p.active.Load().pushOpen(enc, s)
	return s
}

func (p *Profiler) beginScope(rec gpu.Recorder, label string, parent *TimerScope, forPass bool) *TimerScope {
	p.openScopes.Add(1)

	af := p.active.Load()
	s := &TimerScope{
		label:    label,
		pid:      p.pid,
		frameSeq: af.seq,
		handle:   p.nextHandle.Add(1),
		parent:   rootHandle,
	}
	if parent != nil {
		s.parent = parent.handle
		s.track = parent.track
	} else {
		s.track = p.nextTrack.Add(1)
	}

	if p.timingEnabled(rec, forPass) {
		if chunk, slot, ok := p.reserveQueryPair(af); ok {
			s.chunk = chunk
			s.startSlot = slot
		}
	}
	return s
}

func (p *Profiler) timingEnabled(rec gpu.Recorder, forPass bool) bool {
	if p.degraded.Load() || !p.settings.Load().EnableTimerQueries {
		return false
	}
	if !forPass && rec.IsPass() {
		return p.caps.TimerQueriesInPasses
	}
	return p.caps.TimerQueries
}

// reserveQueryPair claims two consecutive slots from the frame's newest
// chunk, appending a chunk when exhausted. The fast path takes only a read
// lock; the write lock is held just to grow the chunk list.
func (p *Profiler) reserveQueryPair(af *activeFrame) (*queryChunk, uint32, bool) {
	af.mu.RLock()
	if n := len(af.chunks); n > 0 {
		if slot, ok := af.chunks[n-1].reservePair(); ok {
			af.mu.RUnlock()
			return af.chunks[n-1], slot, true
		}
	}
	af.mu.RUnlock()

	af.mu.Lock()
	defer af.mu.Unlock()

	// Another goroutine may have grown the list in between.
	if n := len(af.chunks); n > 0 {
		if slot, ok := af.chunks[n-1].reservePair(); ok {
			return af.chunks[n-1], slot, true
		}
	}

	// Size the new chunk to the whole frame so far, doubling capacity on
	// each growth within one frame.
	var frameSlots uint32
	for _, c := range af.chunks {
		frameSlots += c.capacity
	}
	chunk, err := p.alloc.obtain(frameSlots)
	if err != nil {
		// One failure degrades the whole profiler to no-timing mode instead
		// of failing every scope.
		if !p.degraded.Swap(true) {
			Logger().Warn("profiler: query set creation failed, timing disabled", "err", err)
		}
		return nil, 0, false
	}
	af.chunks = append(af.chunks, chunk)

	slot, ok := chunk.reservePair()
	if !ok {
		return nil, 0, false
	}
	return chunk, slot, true
}

// EndScope closes a scope opened with BeginScope or BeginPassScope.
// rec must be the recorder the scope was opened on.
//
// Usage errors (double close, a scope from an ended frame, closing out of
// order) are reported to the caller and leave the frame usable for other
// scopes.
func (p *Profiler) EndScope(rec gpu.Recorder, s *TimerScope) error {
	if s == nil {
		return ErrNilScope
	}
	if s.closed {
		return ErrScopeClosed
	}

	af := p.active.Load()
	if s.frameSeq != af.seq {
		return ErrStaleScope
	}
	if err := af.popOpen(rec, s); err != nil {
		return err
	}

	if s.chunk != nil {
		switch s.pairState {
		case pairStartWritten:
			rec.WriteTimestamp(s.chunk.set, s.startSlot+1)
			s.pairState = pairBothWritten
		case pairReservedForPass:
			// The graphics API writes both slots at pass boundaries.
		}
	}

	if s.hasDebugGroup {
		rec.PopDebugGroup()
	}

	s.closed = true
	af.addClosed(s)
	p.openScopes.Add(-1)
	return nil
}

// ResolveQueries records, on rec, the copy commands that move all written
// but unresolved query slots of the current frame into readable storage.
//
// Call this once near the end of a profiling frame, on an encoder submitted
// after every encoder that opened scopes in the frame. Calling it several
// times per frame is safe; each slot is resolved exactly once.
func (p *Profiler) ResolveQueries(rec gpu.Recorder) {
	p.mu.Lock()
	defer p.mu.Unlock()

	af := p.active.Load()
	af.mu.RLock()
	chunks := af.chunks
	af.mu.RUnlock()

	for _, chunk := range chunks {
		used := chunk.used.Load()
		resolved := chunk.resolved.Load()
		if resolved == used {
			continue
		}
		chunk.set.Resolve(rec, resolved, used-resolved)
		chunk.resolved.Store(used)
	}
}

// EndFrame marks the end of a profiling frame and queues it for readback.
//
// Call after submitting every encoder used in the frame. Fails with
// ErrOpenScopes if scopes are still open and with ErrUnresolvedQueries if
// ResolveQueries did not cover all written slots.
//
// Recording never blocks here: if the in-flight window is full, the newest
// pending frame is dropped (never the oldest, which would starve completion)
// and its chunks are reclaimed once their outstanding readback finishes.
func (p *Profiler) EndFrame() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if n := p.openScopes.Load(); n > 0 {
		return fmt.Errorf("%w: %d open", ErrOpenScopes, n)
	}

	p.applyCompletionsLocked()

	af := p.active.Load()
	af.mu.RLock()
	chunks := af.chunks
	af.mu.RUnlock()
	af.scopeMu.Lock()
	closed := af.closed
	af.scopeMu.Unlock()

	var unresolved uint32
	for _, chunk := range chunks {
		unresolved += chunk.used.Load() - chunk.resolved.Load()
	}
	if unresolved > 0 {
		return fmt.Errorf("%w: %d slots", ErrUnresolvedQueries, unresolved)
	}

	// Swap in the next recording frame before queueing this one.
	p.active.Store(newActiveFrame(p.frameSeq.Add(1)))

	frame := &pendingFrame{
		seq:         af.seq,
		byParent:    make(map[uint64][]*TimerScope, len(closed)),
		chunks:      chunks,
		ticks:       make(map[*queryChunk][]uint64, len(chunks)),
		pendingMaps: len(chunks),
	}
	for _, s := range closed {
		frame.byParent[s.parent] = append(frame.byParent[s.parent], s)
	}

	var frameSlots uint32
	for _, chunk := range chunks {
		frameSlots += chunk.used.Load()
	}
	p.alloc.noteFrameUsage(frameSlots)

	if p.metrics != nil {
		p.metrics.observeFrame(len(closed), p.alloc.poolSize())
	}

	// Bounded in-flight window: drop the newest pending frame, keeping the
	// oldest frames that are closest to completing.
	if len(p.pending) >= p.Settings().MaxFramesInFlight {
		newest := p.pending[len(p.pending)-1]
		p.pending = p.pending[:len(p.pending)-1]
		p.dropFrameLocked(newest)
	}

	frame.advance(FrameResolving)

	for _, chunk := range frame.chunks {
		chunk := chunk
		chunk.set.MapAsync(0, chunk.used.Load(), func(ticks []uint64, err error) {
			p.enqueueCompletion(completion{frame: frame, chunk: chunk, ticks: ticks, err: err})
		})
	}
	frame.advance(FrameReadbackPending)
	if frame.pendingMaps == 0 {
		frame.advance(FrameReady)
	}

	p.pending = append(p.pending, frame)
	if p.metrics != nil {
		p.metrics.setInFlight(len(p.pending))
	}
	return nil
}

// ProcessFinishedFrame returns the reconstructed result tree of the oldest
// pending frame if its readback has completed, or (nil, nil) when no frame
// is ready yet.
//
// Frames complete in strict submission order: a later frame's results are
// never surfaced before an earlier one's, even if the driver finishes their
// readbacks out of order. The device's current timestamp period is queried
// from the binding on every call, never cached.
//
// A frame whose readback failed yields ErrReadbackFailed; its resources have
// been reclaimed and later frames are unaffected.
func (p *Profiler) ProcessFinishedFrame() ([]Result, error) {
	return p.ProcessFinishedFrameWithPeriod(p.binding.TimestampPeriod())
}

// ProcessFinishedFrameWithPeriod is ProcessFinishedFrame with an explicit
// ticks→nanoseconds period, for callers that obtain it out of band.
func (p *Profiler) ProcessFinishedFrameWithPeriod(timestampPeriod float32) ([]Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.applyCompletionsLocked()

	if len(p.pending) == 0 {
		return nil, nil
	}

	frame := p.pending[0]
	switch frame.State() {
	case FrameReady:
		p.pending = p.pending[1:]
		results := reconstructResults(frame, timestampPeriod)
		p.retireFrameLocked(frame)
		if p.metrics != nil {
			p.metrics.setInFlight(len(p.pending))
		}
		return results, nil

	case FrameFailed:
		p.pending = p.pending[1:]
		err := frame.err
		p.retireFrameLocked(frame)
		if p.metrics != nil {
			p.metrics.frameFailed(len(p.pending))
		}
		return nil, fmt.Errorf("%w: %v", ErrReadbackFailed, err)

	default:
		return nil, nil
	}
}

// DiscardPendingFrames abandons every queued frame without producing
// results. Chunks of frames whose readback is still outstanding are
// reclaimed once the driver's notification arrives, never eagerly.
// Calling this twice, or with nothing pending, is a no-op.
func (p *Profiler) DiscardPendingFrames() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.applyCompletionsLocked()
	for _, frame := range p.pending {
		p.dropFrameLocked(frame)
	}
	p.pending = nil
	if p.metrics != nil {
		p.metrics.setInFlight(0)
	}
}

// Close discards all pending frames and destroys pooled chunks.
// Close is idempotent. Recording into a closed profiler is harmless: scopes
// are tracked untimed and EndFrame reports ErrClosed.
//
// Readbacks still outstanding at Close are reclaimed when their
// notifications arrive; call DiscardPendingFrames once afterwards if the
// device is polled past this point.
func (p *Profiler) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	p.applyCompletionsLocked()
	for _, frame := range p.pending {
		p.dropFrameLocked(frame)
	}
	p.pending = nil

	// Active chunks were never submitted for readback; safe to destroy.
	af := p.active.Load()
	af.mu.Lock()
	for _, chunk := range af.chunks {
		chunk.destroy()
	}
	af.chunks = nil
	af.mu.Unlock()

	p.alloc.releaseFree()
	p.degraded.Store(true)
}

// OpenScopes returns the number of currently open timer scopes.
func (p *Profiler) OpenScopes() int { return int(p.openScopes.Load()) }

// InFlightFrames returns the number of frames queued for readback.
func (p *Profiler) InFlightFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// FrameStates returns the states of the pending frames, oldest first.
// Completion notifications received so far are applied first.
func (p *Profiler) FrameStates() []FrameState {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.applyCompletionsLocked()
	states := make([]FrameState, len(p.pending))
	for i, frame := range p.pending {
		states[i] = frame.State()
	}
	return states
}

// enqueueCompletion hands a readback notification to the pipeline.
// Called from binding callbacks on arbitrary goroutines; must stay cheap and
// must not take the pipeline mutex.
func (p *Profiler) enqueueCompletion(c completion) {
	p.completionsMu.Lock()
	p.completions = append(p.completions, c)
	p.completionsMu.Unlock()
}

// applyCompletionsLocked drains the completion queue into frame state.
// Caller holds p.mu.
func (p *Profiler) applyCompletionsLocked() {
	p.completionsMu.Lock()
	queued := p.completions
	p.completions = nil
	p.completionsMu.Unlock()

	for _, c := range queued {
		frame := c.frame
		if c.err != nil {
			if frame.err == nil {
				frame.err = c.err
			}
			Logger().Warn("profiler: query readback failed", "frame", frame.seq, "err", c.err)
		} else {
			frame.ticks[c.chunk] = c.ticks
		}
		frame.pendingMaps--

		if frame.pendingMaps > 0 {
			continue
		}
		switch {
		case frame.dropped:
			p.retireFrameLocked(frame)
		case frame.err != nil:
			frame.advance(FrameFailed)
		default:
			frame.advance(FrameReady)
		}
	}
}

// dropFrameLocked abandons a frame. Chunks are reclaimed immediately when no
// readback is outstanding, otherwise deferred to completion application so
// memory the driver may still write to is never handed out again.
func (p *Profiler) dropFrameLocked(frame *pendingFrame) {
	if frame.dropped || frame.State() == FrameRetired {
		return
	}
	frame.dropped = true
	Logger().Warn("profiler: dropping frame", "frame", frame.seq, "state", frame.State())
	if p.metrics != nil {
		p.metrics.frameDropped()
	}
	if frame.pendingMaps == 0 {
		p.retireFrameLocked(frame)
	}
}

// retireFrameLocked returns a frame's chunks to the allocator exactly once.
func (p *Profiler) retireFrameLocked(frame *pendingFrame) {
	if frame.State() == FrameRetired {
		return
	}
	chunks := frame.chunks
	frame.chunks = nil
	frame.advance(FrameRetired)
	p.alloc.recycle(chunks, p.Settings().EnableTimerQueries && !p.closed)
}
