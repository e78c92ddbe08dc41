package scan

import (
	"context"
	"sync"

	"github.com/clausebit/companion/internal/model"
)

// Badges tracks the "new result" indicator per tab.
type Badges struct {
	mu    sync.RWMutex
	byTab map[string]model.BadgeEvent
}

// NewBadges creates an empty badge board.
func NewBadges() *Badges {
	return &Badges{byTab: make(map[string]model.BadgeEvent)}
}

// NewResult raises the badge for the event's tab.
func (b *Badges) NewResult(_ context.Context, ev model.BadgeEvent) {
	b.mu.Lock()
	b.byTab[ev.TabID] = ev
	b.mu.Unlock()
}

// Get returns the raised badge for tabID, if any.
func (b *Badges) Get(tabID string) (model.BadgeEvent, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ev, ok := b.byTab[tabID]
	return ev, ok
}

// Clear lowers the badge for tabID and reports whether one was raised.
func (b *Badges) Clear(tabID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.byTab[tabID]
	delete(b.byTab, tabID)
	return ok
}
