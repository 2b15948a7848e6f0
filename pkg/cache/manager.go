package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Backend stores entries by their hex key.
type Backend interface {
	// Get returns the entry for key, or ErrCacheMiss if absent.
	Get(ctx context.Context, key string) (*Entry, error)

	// Set stores entry under key, replacing any previous entry.
	Set(ctx context.Context, key string, entry *Entry) error

	// Name labels the backend in metrics and logs.
	Name() string
}

// Manager applies TTL rules and metrics on top of a Backend.
type Manager struct {
	backend Backend
	ttl     time.Duration
}

// NewManager creates a cache manager. A ttl of 0 means entries never expire.
func NewManager(backend Backend, ttl time.Duration) *Manager {
	if backend == nil {
		panic("cache backend cannot be nil")
	}
	return &Manager{
		backend: backend,
		ttl:     ttl,
	}
}

// TTL returns the configured time-to-live.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Backend returns the underlying backend.
func (m *Manager) Backend() Backend {
	return m.backend
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	entry, layer, err := m.lookup(ctx, key.String())
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%s get: %w", m.backend.Name(), err)
	}

	if entry.IsExpired(m.ttl) {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(layer).Inc()
	return entry, nil
}

// layered is implemented by backends made of several layers.
type layered interface {
	getLayer(ctx context.Context, key string) (*Entry, string, error)
}

// lookup reads key from the backend and names the layer that served it.
func (m *Manager) lookup(ctx context.Context, key string) (*Entry, string, error) {
	if l, ok := m.backend.(layered); ok {
		return l.getLayer(ctx, key)
	}
	entry, err := m.backend.Get(ctx, key)
	return entry, m.backend.Name(), err
}

// Set stores a cache entry under key.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	if err := m.backend.Set(ctx, key.String(), entry); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("%s set: %w", m.backend.Name(), err)
	}

	CacheWriteBytes.Add(float64(len(entry.Data)))
	return nil
}
