package profiler

import (
	"sync"
	"testing"

	"github.com/gogpu/wgpu-profiler/gpu/virtualgpu"
)

func newTestAllocator(t *testing.T, chunkCapacity uint32) (*chunkAllocator, *virtualgpu.Device) {
	t.Helper()
	dev := virtualgpu.New()
	settings := DefaultSettings()
	settings.ChunkCapacity = chunkCapacity
	return newChunkAllocator(dev, settings), dev
}

func TestReservePairConcurrent(t *testing.T) {
	alloc, _ := newTestAllocator(t, 64)
	chunk, err := alloc.obtain(0)
	if err != nil {
		t.Fatal(err)
	}

	const goroutines = 8
	slots := make([][]uint32, goroutines)
	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for {
				slot, ok := chunk.reservePair()
				if !ok {
					return
				}
				slots[g] = append(slots[g], slot)
			}
		}(g)
	}
	wg.Wait()

	// Every pair handed out exactly once, all 32 pairs covered.
	seen := make(map[uint32]bool)
	for _, s := range slots {
		for _, slot := range s {
			if slot%2 != 0 {
				t.Errorf("odd start slot %d", slot)
			}
			if seen[slot] {
				t.Errorf("slot %d handed out twice", slot)
			}
			seen[slot] = true
		}
	}
	if len(seen) != 32 {
		t.Errorf("pairs reserved = %d, want 32", len(seen))
	}
	if _, ok := chunk.reservePair(); ok {
		t.Error("reservation succeeded on exhausted chunk")
	}
}

func TestObtainPrefersFreeList(t *testing.T) {
	alloc, dev := newTestAllocator(t, 8)

	chunk, err := alloc.obtain(0)
	if err != nil {
		t.Fatal(err)
	}
	chunk.reservePair()
	alloc.recycle([]*queryChunk{chunk}, true)

	if alloc.poolSize() != 1 {
		t.Fatalf("pool size = %d, want 1", alloc.poolSize())
	}
	reused, err := alloc.obtain(0)
	if err != nil {
		t.Fatal(err)
	}
	if reused != chunk {
		t.Error("free chunk not reused")
	}
	if reused.used.Load() != 0 || reused.resolved.Load() != 0 {
		t.Error("recycled chunk not reset")
	}
	if dev.LiveQuerySets() != 1 {
		t.Errorf("live sets = %d, want 1", dev.LiveQuerySets())
	}
}

func TestObtainGrowsToHighWaterMark(t *testing.T) {
	alloc, _ := newTestAllocator(t, 8)

	alloc.noteFrameUsage(100)
	chunk, err := alloc.obtain(0)
	if err != nil {
		t.Fatal(err)
	}
	if chunk.capacity < 100 {
		t.Errorf("capacity = %d, want at least the high-water mark 100", chunk.capacity)
	}

	// An explicit minimum below the mark does not shrink the result.
	chunk2, err := alloc.obtain(16)
	if err != nil {
		t.Fatal(err)
	}
	if chunk2.capacity < 100 {
		t.Errorf("capacity = %d, want at least 100", chunk2.capacity)
	}
}

func TestObtainCapsAtDeviceLimit(t *testing.T) {
	alloc, _ := newTestAllocator(t, 8)
	alloc.maxCapacity = 64

	alloc.noteFrameUsage(1 << 20)
	chunk, err := alloc.obtain(0)
	if err != nil {
		t.Fatal(err)
	}
	if chunk.capacity != 64 {
		t.Errorf("capacity = %d, want device limit 64", chunk.capacity)
	}
}

func TestRecycleDropsUndersizedChunks(t *testing.T) {
	alloc, dev := newTestAllocator(t, 8)

	small, err := alloc.obtain(0) // capacity 8
	if err != nil {
		t.Fatal(err)
	}
	alloc.noteFrameUsage(64) // threshold becomes 32

	alloc.recycle([]*queryChunk{small}, true)
	if alloc.poolSize() != 0 {
		t.Errorf("undersized chunk kept in pool")
	}

	big, err := alloc.obtain(0) // capacity 64 now
	if err != nil {
		t.Fatal(err)
	}
	alloc.recycle([]*queryChunk{big}, true)
	if alloc.poolSize() != 1 {
		t.Errorf("right-sized chunk not kept")
	}

	alloc.recycle(nil, true) // empty retire is fine

	alloc.releaseFree()
	if alloc.poolSize() != 0 || dev.LiveQuerySets() != 0 {
		t.Errorf("releaseFree left sets: pool=%d live=%d",
			alloc.poolSize(), dev.LiveQuerySets())
	}
}

func TestRecycleDestroysWhenKeepFalse(t *testing.T) {
	alloc, dev := newTestAllocator(t, 8)
	chunk, err := alloc.obtain(0)
	if err != nil {
		t.Fatal(err)
	}
	alloc.recycle([]*queryChunk{chunk}, false)
	if alloc.poolSize() != 0 || dev.LiveQuerySets() != 0 {
		t.Errorf("chunk survived keep=false: pool=%d live=%d",
			alloc.poolSize(), dev.LiveQuerySets())
	}
}

func TestSetBaseCapacity(t *testing.T) {
	alloc, _ := newTestAllocator(t, 8)

	alloc.setBaseCapacity(32)
	chunk, err := alloc.obtain(0)
	if err != nil {
		t.Fatal(err)
	}
	if chunk.capacity != 32 {
		t.Errorf("capacity = %d, want 32", chunk.capacity)
	}

	// Lowering the base never shrinks the high-water mark.
	alloc.noteFrameUsage(128)
	alloc.setBaseCapacity(8)
	chunk, err = alloc.obtain(0)
	if err != nil {
		t.Fatal(err)
	}
	if chunk.capacity != 128 {
		t.Errorf("capacity = %d, want 128", chunk.capacity)
	}
}
