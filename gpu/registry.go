package gpu

import (
	"sync"
)

// Binding names used by the built-in implementations.
const (
	// BindingWgpu is the gogpu/wgpu hardware binding (gpu/wgpuquery).
	BindingWgpu = "wgpu"

	// BindingVirtual is the CPU-simulated binding (gpu/virtualgpu).
	BindingVirtual = "virtual"
)

// BindingFactory creates a new binding instance.
// Factories return an error when the underlying device is unavailable.
type BindingFactory func() (Binding, error)

// registry holds registered bindings.
var (
	registryMu sync.RWMutex
	bindings   = make(map[string]BindingFactory)
	// Priority order for binding selection (first available wins).
	// Hardware timestamps beat the simulation.
	bindingPriority = []string{BindingWgpu, BindingVirtual}
)

// Register registers a binding factory with the given name.
// This is typically called from init() functions in binding packages.
// If a binding with the same name is already registered, it is replaced.
func Register(name string, factory BindingFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	bindings[name] = factory
}

// Unregister removes a binding from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(bindings, name)
}

// Available returns a list of registered binding names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(bindings))
	for name := range bindings {
		names = append(names, name)
	}
	return names
}

// IsRegistered checks if a binding with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := bindings[name]
	return ok
}

// Get returns a binding instance by name.
// Returns ErrBindingNotAvailable if the name is not registered.
func Get(name string) (Binding, error) {
	registryMu.RLock()
	factory, ok := bindings[name]
	registryMu.RUnlock()

	if !ok {
		return nil, ErrBindingNotAvailable
	}
	return factory()
}

// Default returns the best available binding based on priority.
// Returns ErrBindingNotAvailable if no registered binding can be created.
func Default() (Binding, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range bindingPriority {
		if factory, ok := bindings[name]; ok {
			if b, err := factory(); err == nil {
				return b, nil
			}
		}
	}

	// Fallback: first registered binding that comes up.
	for _, factory := range bindings {
		if b, err := factory(); err == nil {
			return b, nil
		}
	}

	return nil, ErrBindingNotAvailable
}
