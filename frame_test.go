package profiler

import (
	"errors"
	"testing"

	"github.com/gogpu/wgpu-profiler/gpu"
)

func TestFrameStateAdvancesForwardOnly(t *testing.T) {
	f := &pendingFrame{}
	if f.State() != FrameRecording {
		t.Fatalf("initial state = %v", f.State())
	}

	f.advance(FrameResolving)
	f.advance(FrameReadbackPending)
	f.advance(FrameReady)

	// Late or duplicate transitions never move the frame backward.
	f.advance(FrameResolving)
	f.advance(FrameReadbackPending)
	if f.State() != FrameReady {
		t.Errorf("state regressed to %v", f.State())
	}

	f.advance(FrameRetired)
	f.advance(FrameReady)
	if f.State() != FrameRetired {
		t.Errorf("state left Retired: %v", f.State())
	}
}

func TestFrameStateString(t *testing.T) {
	for state, want := range map[FrameState]string{
		FrameRecording:       "Recording",
		FrameResolving:       "Resolving",
		FrameReadbackPending: "ReadbackPending",
		FrameReady:           "Ready",
		FrameFailed:          "Failed",
		FrameRetired:         "Retired",
		FrameState(99):       "Unknown(99)",
	} {
		if got := state.String(); got != want {
			t.Errorf("String(%d) = %q, want %q", int32(state), got, want)
		}
	}
}

func TestOpenStackPerRecorder(t *testing.T) {
	f := newActiveFrame(1)
	rec1, rec2 := &nopRecorder{}, &nopRecorder{}

	a := &TimerScope{label: "a"}
	b := &TimerScope{label: "b"}
	c := &TimerScope{label: "c"}

	f.pushOpen(rec1, a)
	f.pushOpen(rec1, b)
	f.pushOpen(rec2, c)

	// a is shadowed by b on rec1; c on rec2 does not interfere.
	if err := f.popOpen(rec1, a); !errors.Is(err, ErrMisnestedScope) {
		t.Errorf("pop shadowed scope: %v", err)
	}
	if err := f.popOpen(rec2, b); !errors.Is(err, ErrMisnestedScope) {
		t.Errorf("pop from wrong recorder: %v", err)
	}
	if err := f.popOpen(rec2, c); err != nil {
		t.Errorf("pop c: %v", err)
	}
	if err := f.popOpen(rec1, b); err != nil {
		t.Errorf("pop b: %v", err)
	}
	if err := f.popOpen(rec1, a); err != nil {
		t.Errorf("pop a: %v", err)
	}
	if err := f.popOpen(rec1, a); !errors.Is(err, ErrMisnestedScope) {
		t.Errorf("pop from empty stack: %v", err)
	}
}

type nopRecorder struct{}

func (*nopRecorder) IsPass() bool                        { return false }
func (*nopRecorder) WriteTimestamp(gpu.QuerySet, uint32) {}
func (*nopRecorder) PushDebugGroup(string)               {}
func (*nopRecorder) PopDebugGroup()                      {}
