package integration

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor creates a Service from credentials.
// Implementations register themselves with the registry using Register().
type Constructor func(creds Credentials) (Service, error)

// registry maps providers to their constructors
var (
	registry      = make(map[Provider]Constructor)
	registryMutex sync.RWMutex
)

// Register registers an adapter constructor.
// This is called from init() functions in adapter packages (notion, gtasks).
//
// Example:
//
//	func init() {
//	    integration.Register(integration.ProviderNotion, New)
//	}
func Register(p Provider, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("integration: Register constructor is nil for provider %s", p))
	}

	if _, exists := registry[p]; exists {
		panic(fmt.Sprintf("integration: Register called twice for provider %s", p))
	}

	registry[p] = constructor
}

// New builds the adapter registered for p.
// Returns ErrUnknownProvider if nothing is registered.
func New(p Provider, creds Credentials) (Service, error) {
	registryMutex.RLock()
	constructor := registry[p]
	registryMutex.RUnlock()

	if constructor == nil {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownProvider, p, RegisteredProviders())
	}
	return constructor(creds)
}

// IsRegistered returns true if a constructor is registered for the provider.
func IsRegistered(p Provider) bool {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	_, exists := registry[p]
	return exists
}

// RegisteredProviders returns all registered providers, sorted.
func RegisteredProviders() []Provider {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	providers := make([]Provider, 0, len(registry))
	for p := range registry {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

// UnregisterAll clears all registered constructors.
// This is primarily useful for testing.
func UnregisterAll() {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	registry = make(map[Provider]Constructor)
}
