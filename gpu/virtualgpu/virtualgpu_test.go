package virtualgpu

import (
	"errors"
	"testing"

	"github.com/gogpu/wgpu-profiler/gpu"
)

func TestRegisteredAsBinding(t *testing.T) {
	if !gpu.IsRegistered(gpu.BindingVirtual) {
		t.Fatal("virtual binding not registered")
	}
	b, err := gpu.Get(gpu.BindingVirtual)
	if err != nil {
		t.Fatal(err)
	}
	if !b.Capabilities().TimerQueries {
		t.Error("virtual binding should support timer queries")
	}
}

func TestTicksAdvancePerWrite(t *testing.T) {
	dev := New(WithTickStep(10))
	qs, err := dev.CreateQuerySet(4)
	if err != nil {
		t.Fatal(err)
	}
	enc := dev.NewEncoder("main")

	enc.WriteTimestamp(qs, 0)
	enc.WriteTimestamp(qs, 1)
	qs.Resolve(enc, 0, 2)

	var got []uint64
	qs.MapAsync(0, 2, func(ticks []uint64, err error) {
		if err != nil {
			t.Errorf("map error: %v", err)
		}
		got = ticks
	})
	if got != nil {
		t.Fatal("completion fired before Poll")
	}
	if n := dev.Poll(); n != 1 {
		t.Fatalf("Poll delivered %d, want 1", n)
	}
	if len(got) != 2 || got[0] != 10 || got[1] != 20 {
		t.Errorf("ticks = %v, want [10 20]", got)
	}
}

func TestResolveSnapshotsSlots(t *testing.T) {
	dev := New()
	qs, err := dev.CreateQuerySet(4)
	if err != nil {
		t.Fatal(err)
	}
	enc := dev.NewEncoder("main")

	enc.WriteTimestamp(qs, 0)
	qs.Resolve(enc, 0, 1)
	// Written after the resolve: must not be visible to the map.
	enc.WriteTimestamp(qs, 1)

	var got []uint64
	qs.MapAsync(0, 2, func(ticks []uint64, _ error) { got = ticks })
	dev.Poll()
	if got[0] == 0 || got[1] != 0 {
		t.Errorf("ticks = %v, want only slot 0 resolved", got)
	}
}

func TestFailNextMaps(t *testing.T) {
	dev := New()
	qs, _ := dev.CreateQuerySet(2)

	injected := errors.New("simulated loss")
	dev.FailNextMaps(injected)
	var gotErr error
	qs.MapAsync(0, 2, func(_ []uint64, err error) { gotErr = err })
	dev.Poll()
	if !errors.Is(gotErr, injected) {
		t.Errorf("err = %v, want injected error", gotErr)
	}

	dev.FailNextMaps(nil)
	gotErr = errors.New("sentinel")
	qs.MapAsync(0, 2, func(_ []uint64, err error) { gotErr = err })
	dev.Poll()
	if gotErr != nil {
		t.Errorf("err after reset = %v", gotErr)
	}
}

func TestLiveQuerySetAccounting(t *testing.T) {
	dev := New()
	a, _ := dev.CreateQuerySet(2)
	b, _ := dev.CreateQuerySet(2)
	if dev.LiveQuerySets() != 2 {
		t.Fatalf("live = %d, want 2", dev.LiveQuerySets())
	}
	a.Destroy()
	b.Destroy()
	if dev.LiveQuerySets() != 0 {
		t.Fatalf("live = %d, want 0", dev.LiveQuerySets())
	}
}

func TestPassRecorder(t *testing.T) {
	dev := New()
	pass := dev.NewPass("render")
	if !pass.IsPass() {
		t.Error("pass recorder should report IsPass")
	}
	enc := dev.NewEncoder("main")
	if enc.IsPass() {
		t.Error("encoder recorder should not report IsPass")
	}

	qs, _ := dev.CreateQuerySet(2)
	pass.WritePassTimestamps(qs, 0, 1)
	qs.Resolve(enc, 0, 2)
	var got []uint64
	qs.MapAsync(0, 2, func(ticks []uint64, _ error) { got = ticks })
	dev.Poll()
	if len(got) != 2 || got[1] <= got[0] {
		t.Errorf("pass ticks = %v, want increasing pair", got)
	}
}
