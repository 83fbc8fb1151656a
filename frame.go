package profiler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu-profiler/gpu"
)

// FrameState is the resolution state of a profiler frame.
//
// Frames advance monotonically:
//
//	Recording → Resolving → ReadbackPending → Ready → Retired
//
// with Failed as an alternative to Ready when the asynchronous readback
// reports an error. A frame never re-enters an earlier state.
type FrameState int32

const (
	// FrameRecording: scopes may be opened and closed.
	FrameRecording FrameState = iota

	// FrameResolving: resolve copies have been recorded and the frame is
	// being queued; no further scopes are accepted.
	FrameResolving

	// FrameReadbackPending: asynchronous maps are issued; awaiting the
	// driver's completion notifications.
	FrameReadbackPending

	// FrameReady: raw tick data is available; results can be reconstructed.
	FrameReady

	// FrameFailed: the readback reported an error; results are unavailable
	// but resources are reclaimed normally.
	FrameFailed

	// FrameRetired: results consumed or frame discarded; chunks returned to
	// the allocator.
	FrameRetired
)

func (s FrameState) String() string {
	switch s {
	case FrameRecording:
		return "Recording"
	case FrameResolving:
		return "Resolving"
	case FrameReadbackPending:
		return "ReadbackPending"
	case FrameReady:
		return "Ready"
	case FrameFailed:
		return "Failed"
	case FrameRetired:
		return "Retired"
	default:
		return fmt.Sprintf("Unknown(%d)", int32(s))
	}
}

// activeFrame accumulates scopes and chunks while the application records.
type activeFrame struct {
	seq uint64

	// mu guards the chunk list. Reserving a pair from the newest chunk only
	// needs a read lock (the per-chunk counter is atomic); appending a chunk
	// takes the write lock.
	mu     sync.RWMutex
	chunks []*queryChunk

	// scopeMu guards closed scopes and the per-recorder open stacks.
	// Fine-grained so multiple goroutines can record into one frame.
	scopeMu    sync.Mutex
	closed     []*TimerScope
	openStacks map[gpu.Recorder][]*TimerScope
}

func newActiveFrame(seq uint64) *activeFrame {
	return &activeFrame{
		seq:        seq,
		openStacks: make(map[gpu.Recorder][]*TimerScope),
	}
}

// pushOpen records s as the most recently opened scope on rec.
func (f *activeFrame) pushOpen(rec gpu.Recorder, s *TimerScope) {
	f.scopeMu.Lock()
	f.openStacks[rec] = append(f.openStacks[rec], s)
	f.scopeMu.Unlock()
}

// popOpen removes s from rec's open stack. Fails when s is not the most
// recently opened scope on that recorder.
func (f *activeFrame) popOpen(rec gpu.Recorder, s *TimerScope) error {
	f.scopeMu.Lock()
	defer f.scopeMu.Unlock()

	stack := f.openStacks[rec]
	if len(stack) == 0 || stack[len(stack)-1] != s {
		return ErrMisnestedScope
	}
	if len(stack) == 1 {
		delete(f.openStacks, rec)
	} else {
		f.openStacks[rec] = stack[:len(stack)-1]
	}
	return nil
}

func (f *activeFrame) addClosed(s *TimerScope) {
	f.scopeMu.Lock()
	f.closed = append(f.closed, s)
	f.scopeMu.Unlock()
}

// pendingFrame is a frame between EndFrame and retirement.
// All fields except state are owned by the pipeline mutex once the frame is
// built; completion callbacks never touch it directly (they enqueue events
// the pipeline applies later).
type pendingFrame struct {
	seq   uint64
	state atomic.Int32

	chunks   []*queryChunk
	byParent map[uint64][]*TimerScope

	// ticks holds each chunk's mapped raw values once its readback lands.
	ticks map[*queryChunk][]uint64

	// pendingMaps counts chunks still awaiting their map notification.
	pendingMaps int

	// err is the first readback error, if any.
	err error

	// dropped marks a frame abandoned before completion. Its chunks are
	// recycled only after all outstanding maps finish, so memory the driver
	// may still write to is never reused early.
	dropped bool
}

func (f *pendingFrame) State() FrameState {
	return FrameState(f.state.Load())
}

// advance moves the frame forward, never backward.
func (f *pendingFrame) advance(to FrameState) {
	for {
		cur := f.state.Load()
		if FrameState(cur) >= to {
			return
		}
		if f.state.CompareAndSwap(cur, int32(to)) {
			return
		}
	}
}

// completion is one readback notification, handed from a binding callback to
// the pipeline via the profiler's completion queue.
type completion struct {
	frame *pendingFrame
	chunk *queryChunk
	ticks []uint64
	err   error
}
