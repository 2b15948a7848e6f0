package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// MemoryTier keeps the most recently used entries in memory in front of a
// slower backend. Writes go to both layers.
type MemoryTier struct {
	entries *lru.Cache
	next    Backend
}

// NewMemoryTier wraps next with an LRU of size entries.
func NewMemoryTier(size int, next Backend) (*MemoryTier, error) {
	if next == nil {
		return nil, fmt.Errorf("next backend is required")
	}
	entries, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &MemoryTier{entries: entries, next: next}, nil
}

// Name implements Backend.
func (m *MemoryTier) Name() string {
	return "memory+" + m.next.Name()
}

// Len returns the number of entries held in memory.
func (m *MemoryTier) Len() int {
	return m.entries.Len()
}

// Get implements Backend.
func (m *MemoryTier) Get(ctx context.Context, key string) (*Entry, error) {
	entry, _, err := m.getLayer(ctx, key)
	return entry, err
}

// getLayer is Get that also reports which layer answered: "memory" or the
// name of the next backend.
func (m *MemoryTier) getLayer(ctx context.Context, key string) (*Entry, string, error) {
	if v, ok := m.entries.Get(key); ok {
		return v.(*Entry), "memory", nil
	}

	entry, err := m.next.Get(ctx, key)
	if err != nil {
		return nil, "", err
	}
	m.entries.Add(key, entry)
	return entry, m.next.Name(), nil
}

// Set implements Backend. The memory layer is only updated once the next
// backend accepted the entry.
func (m *MemoryTier) Set(ctx context.Context, key string, entry *Entry) error {
	if err := m.next.Set(ctx, key, entry); err != nil {
		return err
	}
	m.entries.Add(key, entry)
	return nil
}
