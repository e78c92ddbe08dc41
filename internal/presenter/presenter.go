// Package presenter renders the risk summary for a tab's origin: the cached
// copy first, then a fresh one fetched from the analysis backend.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/clausebit/companion/internal/auth"
	"github.com/clausebit/companion/internal/cache"
	"github.com/clausebit/companion/internal/clock"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/internal/scan"
	"github.com/clausebit/companion/pkg/logger"
	"github.com/clausebit/companion/pkg/metrics"
)

// DefaultRefreshDelay gives a background scan time to finish before the
// presenter fetches on its own.
const DefaultRefreshDelay = time.Second

// SummaryFetcher fetches a fresh summary for an origin.
type SummaryFetcher interface {
	Summary(ctx context.Context, origin string) (*model.Summary, error)
}

// BadgeClearer lowers the new-result indicator once a tab's summary is shown.
type BadgeClearer interface {
	Clear(tabID string) bool
}

// Options tune a Presenter.
type Options struct {
	Clock clock.Clock
	// RefreshDelay is the wait between the cached render and the fetch.
	// Zero fetches immediately.
	RefreshDelay time.Duration
	// FetchTimeout bounds the shared backend fetch.
	FetchTimeout time.Duration
	Badges       BadgeClearer
	// Credentials, when set, must yield a token for the summary fetch;
	// the fetch fails with auth.ErrNoCredential when it cannot.
	Credentials auth.TokenSource
}

// Presenter serves popup opens.
type Presenter struct {
	fetcher    SummaryFetcher
	reconciler *cache.Reconciler
	opts       Options
	logger     *logger.Logger
	group      singleflight.Group
}

// New creates a Presenter.
func New(fetcher SummaryFetcher, reconciler *cache.Reconciler, opts Options, log *logger.Logger) *Presenter {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.RefreshDelay < 0 {
		opts.RefreshDelay = 0
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = time.Minute
	}
	return &Presenter{
		fetcher:    fetcher,
		reconciler: reconciler,
		opts:       opts,
		logger:     log.Named("presenter"),
	}
}

// Cached returns the view for whatever is cached for rawURL's origin,
// or a placeholder.
func (p *Presenter) Cached(ctx context.Context, rawURL string) (View, error) {
	origin, err := scan.NormalizeOrigin(rawURL)
	if err != nil {
		return View{}, err
	}
	return p.cachedView(ctx, origin), nil
}

// Open renders the cached summary for rawURL's origin, waits the refresh
// delay, fetches a fresh summary and renders again. A failed refresh keeps
// the previous state and adds NoticeUnavailable. Only an unsupported URL,
// a renderer error or ctx cancellation is returned as an error.
func (p *Presenter) Open(ctx context.Context, tabID, rawURL string, r Renderer) (View, error) {
	origin, err := scan.NormalizeOrigin(rawURL)
	if err != nil {
		return View{}, err
	}
	log := p.logger.WithTab(tabID, origin)

	view := p.cachedView(ctx, origin)
	view.TabID = tabID
	if err := r.Render(ctx, view); err != nil {
		return view, fmt.Errorf("render cached summary: %w", err)
	}
	if p.opts.Badges != nil {
		p.opts.Badges.Clear(tabID)
	}

	if err := p.wait(ctx); err != nil {
		return view, err
	}

	entry, err := p.Refresh(ctx, origin)
	if err != nil {
		if ctx.Err() != nil {
			return view, ctx.Err()
		}
		log.Warn("summary refresh failed", zap.Error(err))
		view.Notice = NoticeUnavailable
	} else {
		view = NewView(entry, model.ProvenanceConfirmed)
		view.TabID = tabID
	}

	if err := r.Render(ctx, view); err != nil {
		return view, fmt.Errorf("render refreshed summary: %w", err)
	}
	return view, nil
}

// Refresh fetches and caches a fresh summary for origin. Concurrent calls
// for the same origin share one backend request. If a newer fetch has
// already been cached, that entry is returned instead.
func (p *Presenter) Refresh(ctx context.Context, origin string) (*model.CachedSummary, error) {
	ch := p.group.DoChan(origin, func() (any, error) {
		// The shared fetch outlives any single caller.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.FetchTimeout)
		defer cancel()

		if p.opts.Credentials != nil {
			token, err := p.opts.Credentials.Token(fctx)
			if err != nil {
				metrics.SummaryFetchesTotal.WithLabelValues("presenter", "unauthenticated").Inc()
				return nil, fmt.Errorf("summary fetch: %w", err)
			}
			fctx = auth.WithToken(fctx, token)
		}

		ticket := p.reconciler.Begin(origin)
		summary, err := p.fetcher.Summary(fctx, origin)
		if err != nil {
			metrics.SummaryFetchesTotal.WithLabelValues("presenter", "error").Inc()
			return nil, err
		}
		metrics.SummaryFetchesTotal.WithLabelValues("presenter", "success").Inc()

		entry, err := p.reconciler.Commit(fctx, ticket, summary)
		if errors.Is(err, cache.ErrStale) {
			return p.reconciler.Lookup(fctx, origin)
		}
		return entry, err
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.CachedSummary), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Presenter) cachedView(ctx context.Context, origin string) View {
	entry, err := p.reconciler.Lookup(ctx, origin)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			p.logger.Warn("cache lookup failed", zap.String("origin", origin), zap.Error(err))
		}
		return PlaceholderView(origin)
	}
	return NewView(entry, model.ProvenanceOptimistic)
}

func (p *Presenter) wait(ctx context.Context) error {
	if p.opts.RefreshDelay == 0 {
		return nil
	}
	done := make(chan struct{})
	timer := p.opts.Clock.AfterFunc(p.opts.RefreshDelay, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}
