package gpu

import (
	"errors"
	"testing"
)

type stubBinding struct {
	caps Capabilities
}

func (s *stubBinding) Capabilities() Capabilities { return s.caps }
func (s *stubBinding) TimestampPeriod() float32   { return 1 }
func (s *stubBinding) CreateQuerySet(capacity uint32) (QuerySet, error) {
	return nil, ErrTimerQueriesUnsupported
}

func TestRegisterGet(t *testing.T) {
	Register("stub", func() (Binding, error) {
		return &stubBinding{caps: Capabilities{TimerQueries: true}}, nil
	})
	defer Unregister("stub")

	if !IsRegistered("stub") {
		t.Fatal("IsRegistered(stub) = false after Register")
	}

	b, err := Get("stub")
	if err != nil {
		t.Fatalf("Get(stub) error: %v", err)
	}
	if !b.Capabilities().TimerQueries {
		t.Error("stub binding lost its capabilities")
	}
}

func TestGetUnknown(t *testing.T) {
	_, err := Get("no-such-binding")
	if !errors.Is(err, ErrBindingNotAvailable) {
		t.Errorf("Get(unknown) error = %v, want ErrBindingNotAvailable", err)
	}
}

func TestUnregister(t *testing.T) {
	Register("temp", func() (Binding, error) { return &stubBinding{}, nil })
	Unregister("temp")
	if IsRegistered("temp") {
		t.Error("temp still registered after Unregister")
	}
}

func TestAvailable(t *testing.T) {
	Register("avail-a", func() (Binding, error) { return &stubBinding{}, nil })
	Register("avail-b", func() (Binding, error) { return &stubBinding{}, nil })
	defer Unregister("avail-a")
	defer Unregister("avail-b")

	names := Available()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["avail-a"] || !found["avail-b"] {
		t.Errorf("Available() = %v, want it to contain avail-a and avail-b", names)
	}
}

func TestDefaultFallsBackToAnyRegistered(t *testing.T) {
	Register("fallback-only", func() (Binding, error) { return &stubBinding{}, nil })
	defer Unregister("fallback-only")

	if _, err := Default(); err != nil {
		t.Fatalf("Default() error: %v, want a fallback binding", err)
	}
}

func TestDefaultSkipsFailingFactories(t *testing.T) {
	Register(BindingWgpu, func() (Binding, error) {
		return nil, errors.New("no adapter")
	})
	Register(BindingVirtual, func() (Binding, error) {
		return &stubBinding{}, nil
	})
	defer Unregister(BindingWgpu)
	defer Unregister(BindingVirtual)

	b, err := Default()
	if err != nil {
		t.Fatalf("Default() error: %v", err)
	}
	if b == nil {
		t.Fatal("Default() returned nil binding")
	}
}
