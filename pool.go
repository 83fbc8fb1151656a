package profiler

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu-profiler/gpu"
)

// queryChunk is a fixed-capacity block of timestamp query slots plus its
// readback storage. A chunk is either active (written by the current frame),
// in flight (owned by exactly one pending frame awaiting readback), or free
// (sitting in the allocator pool). It is never shared between two frames.
type queryChunk struct {
	set      gpu.QuerySet
	capacity uint32

	// used is the number of slots handed out. Slot pairs are reserved with a
	// CAS loop so multiple goroutines can record scopes without locking.
	used atomic.Uint32

	// resolved is the number of slots whose resolve copy has been recorded.
	resolved atomic.Uint32
}

// reservePair claims two consecutive slots. Capacity is even, so both slots
// always land in the same chunk. Returns the start slot, or false when the
// chunk is exhausted.
func (c *queryChunk) reservePair() (uint32, bool) {
	for {
		used := c.used.Load()
		if used+2 > c.capacity {
			return 0, false
		}
		if c.used.CompareAndSwap(used, used+2) {
			return used, true
		}
	}
}

// reset prepares a chunk for reuse by a future frame.
func (c *queryChunk) reset() {
	c.used.Store(0)
	c.resolved.Store(0)
	c.set.Unmap()
}

func (c *queryChunk) destroy() {
	c.set.Destroy()
}

// chunkAllocator owns the free-chunk pool and chunk creation. Chunks are
// reused from the pool before new ones are created, bounding steady-state
// memory. Growth is unbounded: the allocator never refuses an allocation.
//
// The pool mutex is the only allocator-wide lock; reserving slots inside a
// chunk is lock-free.
type chunkAllocator struct {
	binding gpu.Binding

	mu   sync.Mutex
	free []*queryChunk

	// baseCapacity is Settings.ChunkCapacity, the floor for new chunks.
	baseCapacity uint32

	// nextCapacity is the high-water mark: new chunks are at least as large
	// as the busiest frame seen so far, so a steady workload converges on a
	// single chunk per frame.
	nextCapacity uint32

	// maxCapacity caps a single chunk at the device's query set limit.
	maxCapacity uint32
}

func newChunkAllocator(binding gpu.Binding, settings Settings) *chunkAllocator {
	maxCap := binding.Capabilities().MaxQuerySetSize
	if maxCap == 0 {
		maxCap = gpu.DefaultMaxQuerySetSize
	}
	base := settings.ChunkCapacity
	if base > maxCap {
		base = maxCap
	}
	return &chunkAllocator{
		binding:      binding,
		baseCapacity: base,
		nextCapacity: base,
		maxCapacity:  maxCap,
	}
}

// obtain returns a chunk with capacity at least minCapacity when possible,
// preferring recycled chunks over creating new ones. minCapacity communicates
// the combined size of the frame's exhausted chunks, which doubles effective
// capacity on each growth within one frame.
func (a *chunkAllocator) obtain(minCapacity uint32) (*queryChunk, error) {
	a.mu.Lock()
	if n := len(a.free); n > 0 {
		chunk := a.free[n-1]
		a.free = a.free[:n-1]
		a.mu.Unlock()
		return chunk, nil
	}
	capacity := max(minCapacity, a.nextCapacity)
	a.mu.Unlock()

	if capacity > a.maxCapacity {
		capacity = a.maxCapacity
	}
	set, err := a.binding.CreateQuerySet(capacity)
	if err != nil {
		return nil, err
	}
	Logger().Debug("profiler: created query chunk", "capacity", capacity)
	return &queryChunk{set: set, capacity: capacity}, nil
}

// noteFrameUsage records how many slots a finished frame consumed in total.
// Future chunks are sized to hold a whole such frame.
func (a *chunkAllocator) noteFrameUsage(slots uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if slots > a.nextCapacity {
		a.nextCapacity = min(slots, a.maxCapacity)
	}
}

// setBaseCapacity changes the minimum chunk size for chunks created from
// now on. Existing chunks keep their size until retired.
func (a *chunkAllocator) setBaseCapacity(capacity uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.baseCapacity = min(capacity, a.maxCapacity)
	if a.nextCapacity < a.baseCapacity {
		a.nextCapacity = a.baseCapacity
	}
}

// recycle resets retired chunks and returns them to the free pool.
// Chunks smaller than half the high-water mark are destroyed instead of
// kept, so upcoming frames need fewer chunks overall. When keep is false
// (timing disabled) every chunk is destroyed.
func (a *chunkAllocator) recycle(chunks []*queryChunk, keep bool) {
	a.mu.Lock()
	threshold := a.nextCapacity / 2
	a.mu.Unlock()

	for _, chunk := range chunks {
		chunk.reset()
		if keep && chunk.capacity >= threshold {
			a.mu.Lock()
			a.free = append(a.free, chunk)
			a.mu.Unlock()
		} else {
			Logger().Debug("profiler: destroying query chunk", "capacity", chunk.capacity)
			chunk.destroy()
		}
	}
}

// releaseFree destroys all pooled chunks. Used by ChangeSettings when timing
// is disabled and by Close.
func (a *chunkAllocator) releaseFree() {
	a.mu.Lock()
	free := a.free
	a.free = nil
	a.mu.Unlock()

	for _, chunk := range free {
		chunk.destroy()
	}
}

// poolSize returns the number of free chunks, for metrics.
func (a *chunkAllocator) poolSize() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}
