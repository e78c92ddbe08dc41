// Package cache stores the most recent summary per origin. Entries are
// always replaced whole, never merged.
package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/clausebit/companion/internal/model"
)

// KeyPrefix prefixes every storage key; the full key is KeyPrefix+origin.
const KeyPrefix = "summary_"

// ErrNotFound is returned when no summary is cached for an origin.
var ErrNotFound = errors.New("summary not cached")

// Key returns the storage key for origin.
func Key(origin string) string {
	return KeyPrefix + origin
}

// Store is a key-value store of cached summaries keyed by origin.
type Store interface {
	// Get returns the cached entry for origin or ErrNotFound.
	Get(ctx context.Context, origin string) (*model.CachedSummary, error)
	// Put replaces the entry for entry.Origin.
	Put(ctx context.Context, entry *model.CachedSummary) error
}

// MemoryStore keeps summaries in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]model.CachedSummary
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]model.CachedSummary)}
}

func (m *MemoryStore) Get(_ context.Context, origin string) (*model.CachedSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[Key(origin)]
	if !ok {
		return nil, ErrNotFound
	}
	entry.Summary.Clauses = cloneClauses(entry.Summary.Clauses)
	return &entry, nil
}

func (m *MemoryStore) Put(_ context.Context, entry *model.CachedSummary) error {
	stored := *entry
	stored.Summary.Clauses = cloneClauses(entry.Summary.Clauses)

	m.mu.Lock()
	m.entries[Key(entry.Origin)] = stored
	m.mu.Unlock()
	return nil
}

func cloneClauses(in []model.Clause) []model.Clause {
	if in == nil {
		return nil
	}
	out := make([]model.Clause, len(in))
	copy(out, in)
	return out
}
