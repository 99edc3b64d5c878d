package compute

import (
	"log/slog"
	"sort"
	"sync"

	"duck-query/internal/domain"
)

// Endpoint names a compute agent reachable over gRPC.
type Endpoint struct {
	Name      string
	URL       string
	AuthToken string
}

// RemoteCache manages RemoteProvider instances keyed by endpoint name so that
// one connection is kept per agent.
type RemoteCache struct {
	mu      sync.RWMutex
	entries map[string]*RemoteProvider
	docs    domain.DocumentSource
	logger  *slog.Logger
}

// NewRemoteCache creates a RemoteCache whose providers read document text from docs.
func NewRemoteCache(docs domain.DocumentSource, logger *slog.Logger) *RemoteCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteCache{
		entries: make(map[string]*RemoteProvider),
		docs:    docs,
		logger:  logger,
	}
}

// GetOrCreate returns an existing RemoteProvider for the endpoint or creates a
// new one. Uses double-checked locking to minimise lock contention.
func (c *RemoteCache) GetOrCreate(ep Endpoint) *RemoteProvider {
	c.mu.RLock()
	if p, ok := c.entries[ep.Name]; ok {
		c.mu.RUnlock()
		return p
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if p, ok := c.entries[ep.Name]; ok {
		return p
	}

	p := NewRemoteProvider(RemoteConfig{
		ID:          ep.Name,
		EndpointURL: ep.URL,
		AuthToken:   ep.AuthToken,
		Documents:   c.docs,
		Logger:      c.logger,
	})
	c.entries[ep.Name] = p
	return p
}

// Names returns the cached endpoint names in sorted order.
func (c *RemoteCache) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the cached provider for an endpoint name.
func (c *RemoteCache) Get(name string) (*RemoteProvider, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[name]
	return p, ok
}

// Close closes every cached provider.
func (c *RemoteCache) Close() {
	c.mu.Lock()
	entries := c.entries
	c.entries = make(map[string]*RemoteProvider)
	c.mu.Unlock()

	for name, p := range entries {
		if err := p.Close(); err != nil {
			c.logger.Warn("close remote provider", "provider", name, "error", err)
		}
	}
}
