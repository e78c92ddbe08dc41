package conversation

import (
	"sync"

	"github.com/clausebit/companion/internal/auth"
	"github.com/clausebit/companion/pkg/logger"
)

// Manager hands out one Store per dashboard user.
type Manager struct {
	backend Backend
	opts    Options
	logger  *logger.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewManager creates a manager whose stores share backend and options.
func NewManager(b Backend, opts Options, log *logger.Logger) *Manager {
	return &Manager{
		backend: b,
		opts:    opts,
		logger:  log,
		stores:  make(map[string]*Store),
	}
}

// Get returns the store for userID, creating it on first use. An empty id
// maps to the guest user.
func (m *Manager) Get(userID string) *Store {
	if userID == "" {
		userID = auth.GuestUserID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	store, ok := m.stores[userID]
	if !ok {
		store = NewStore(m.backend, userID, m.opts, m.logger)
		m.stores[userID] = store
	}
	return store
}

// Len returns the number of live stores.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stores)
}
