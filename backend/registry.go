package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/shaderkit/backend/wgpu"
)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Opener)
	// Priority order for OpenDefault (first available wins).
	backendPriority = []string{BackendSoftware, BackendNoop}
)

// Register registers a backend opener with the given name.
// This is typically called from init() functions.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = open
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a device on the named backend.
func Open(name string, opts ...wgpu.Option) (*Device, error) {
	registryMu.RLock()
	open, ok := backends[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	return open(opts...)
}

// OpenDefault opens the first backend in priority order that opens
// successfully, then any other registered backend.
func OpenDefault(opts ...wgpu.Option) (*Device, error) {
	registryMu.RLock()
	order := slices.Clone(backendPriority)
	for name := range backends {
		if !slices.Contains(order, name) {
			order = append(order, name)
		}
	}
	registryMu.RUnlock()

	var lastErr error = ErrBackendNotAvailable
	for _, name := range order {
		if !IsRegistered(name) {
			continue
		}
		d, err := Open(name, opts...)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
