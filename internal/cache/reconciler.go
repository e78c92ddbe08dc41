package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/clausebit/companion/internal/clock"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/pkg/metrics"
)

// ErrStale is returned by Commit when a newer fetch already landed.
var ErrStale = errors.New("stale summary discarded")

// Ticket identifies one summary fetch. Tickets for the same origin are
// ordered by the time Begin was called.
type Ticket struct {
	Origin  string
	Version uint64
}

// Reconciler applies last-write-wins to summary writes: a response is
// committed only if no fetch issued after it has committed already.
// Both the scan coordinator and the presenter write through it.
type Reconciler struct {
	store Store
	clock clock.Clock

	mu        sync.Mutex
	issued    map[string]uint64
	committed map[string]uint64
}

// NewReconciler wraps store.
func NewReconciler(store Store, clk clock.Clock) *Reconciler {
	if clk == nil {
		clk = clock.Real()
	}
	return &Reconciler{
		store:     store,
		clock:     clk,
		issued:    make(map[string]uint64),
		committed: make(map[string]uint64),
	}
}

// Begin issues a ticket for a fetch about to start.
func (r *Reconciler) Begin(origin string) Ticket {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued[origin]++
	return Ticket{Origin: origin, Version: r.issued[origin]}
}

// Commit stores summary for the ticket's origin unless a newer ticket has
// already been committed, in which case ErrStale is returned.
func (r *Reconciler) Commit(ctx context.Context, ticket Ticket, summary *model.Summary) (*model.CachedSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ticket.Version <= r.committed[ticket.Origin] {
		metrics.CacheWritesTotal.WithLabelValues("stale").Inc()
		return nil, ErrStale
	}

	entry := &model.CachedSummary{
		Origin:    ticket.Origin,
		Summary:   *summary,
		FetchedAt: r.clock.Now(),
		Version:   ticket.Version,
	}
	if err := r.store.Put(ctx, entry); err != nil {
		metrics.CacheWritesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to cache summary: %w", err)
	}
	r.committed[ticket.Origin] = ticket.Version
	metrics.CacheWritesTotal.WithLabelValues("accepted").Inc()
	return entry, nil
}

// Lookup returns the cached entry for origin or ErrNotFound.
func (r *Reconciler) Lookup(ctx context.Context, origin string) (*model.CachedSummary, error) {
	return r.store.Get(ctx, origin)
}
