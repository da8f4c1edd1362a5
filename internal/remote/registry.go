package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/terminalist/terminalist/internal/model"
)

// Factory builds a Client from a backend's opaque credential and settings blobs.
// Implementations register themselves with the registry using Register().
type Factory func(ctx context.Context, credentials, settings []byte) (Client, error)

// registry maps backend types to their factories
var (
	registry      = make(map[string]Factory)
	registryMutex sync.RWMutex
)

// Register registers a backend implementation under its type tag.
// This is called from init() functions in implementation packages.
//
// Example:
//
//	func init() {
//	    remote.Register("googletasks", New)
//	}
func Register(backendType string, factory Factory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if factory == nil {
		panic(fmt.Sprintf("remote: Register factory is nil for type %s", backendType))
	}

	if _, exists := registry[backendType]; exists {
		panic(fmt.Sprintf("remote: Register called twice for type %s", backendType))
	}

	registry[backendType] = factory
}

// IsRegistered returns true if a factory is registered for the given type.
func IsRegistered(backendType string) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[backendType]
	return exists
}

// RegisteredTypes returns all registered backend types, sorted.
func RegisteredTypes() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New builds the client for a backend row.
func New(ctx context.Context, b *model.Backend) (Client, error) {
	registryMutex.RLock()
	factory := registry[b.Type]
	registryMutex.RUnlock()

	if factory == nil {
		return nil, fmt.Errorf("no remote client registered for backend type %q", b.Type)
	}

	client, err := factory(ctx, b.Credentials, b.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client for %s: %w", b.Type, b.Name, err)
	}
	return client, nil
}

// Resolver builds clients for backends. The sync engine takes a Resolver so
// tests can hand it a client directly.
type Resolver interface {
	Client(ctx context.Context, b *model.Backend) (Client, error)
}

// RegistryResolver resolves clients through the package registry.
type RegistryResolver struct{}

// Client implements Resolver.
func (RegistryResolver) Client(ctx context.Context, b *model.Backend) (Client, error) {
	return New(ctx, b)
}

// StaticResolver always returns the same clients, keyed by backend id.
type StaticResolver map[string]Client

// Client implements Resolver.
func (r StaticResolver) Client(_ context.Context, b *model.Backend) (Client, error) {
	c, ok := r[b.ID]
	if !ok {
		return nil, fmt.Errorf("no client for backend %s", b.ID)
	}
	return c, nil
}

// UnregisterAll clears all registered factories.
// This is primarily useful for testing.
func UnregisterAll() {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry = make(map[string]Factory)
}
