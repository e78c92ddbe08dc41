// Package scan watches browser tab navigation, triggers a one-time collector
// call per newly seen origin, and fetches a summary once the user has stayed
// on an origin for a quiet period.
package scan

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clausebit/companion/internal/auth"
	"github.com/clausebit/companion/internal/cache"
	"github.com/clausebit/companion/internal/clock"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/pkg/logger"
	"github.com/clausebit/companion/pkg/metrics"
)

// DefaultQuietPeriod is the wait before a summary is fetched for a tab.
const DefaultQuietPeriod = 3 * time.Second

// BadgeText is shown on the extension icon when a new result is cached.
const BadgeText = "!"

// Analyzer is the part of the analysis backend the coordinator calls.
type Analyzer interface {
	Collect(ctx context.Context, origin string) error
	Summary(ctx context.Context, origin string) (*model.Summary, error)
}

// Notifier surfaces a freshly cached summary to the user.
type Notifier interface {
	NewResult(ctx context.Context, ev model.BadgeEvent)
}

type clearer interface {
	Clear(tabID string) bool
}

// TabLocator reports the URL a tab currently shows.
type TabLocator func(tabID string) (url string, ok bool)

// Options tune a Coordinator.
type Options struct {
	QuietPeriod time.Duration
	Clock       clock.Clock
	// Credentials, when set, must yield a token for collector and summary
	// calls; calls are skipped when it cannot. When nil, calls carry
	// whatever token the navigation context had, or none.
	Credentials auth.TokenSource
	// Locator overrides how the current URL of a tab is read when the
	// quiet period ends. Defaults to the last URL reported to Navigate.
	Locator TabLocator
	// CallTimeout bounds each backend call made outside a request.
	CallTimeout time.Duration
}

// Stats is a point-in-time view of the coordinator's state.
type Stats struct {
	Tabs           int `json:"tabs"`
	PendingTimers  int `json:"pending_timers"`
	ScannedOrigins int `json:"scanned_origins"`
}

type pendingSummary struct {
	timer clock.Timer
	id    uint64
}

// Coordinator owns all per-process scan state. Construct one per process;
// its de-duplication guarantees last for the coordinator's lifetime.
type Coordinator struct {
	analyzer   Analyzer
	reconciler *cache.Reconciler
	notifiers  []Notifier
	opts       Options
	logger     *logger.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu         sync.Mutex
	tabOrigins map[string]string
	tabURLs    map[string]string
	pending    map[string]pendingSummary
	scanned    map[string]struct{}
	nextID     uint64
	closed     bool
}

// NewCoordinator creates a coordinator. Summaries are written through
// reconciler and announced to every notifier.
func NewCoordinator(analyzer Analyzer, reconciler *cache.Reconciler, opts Options, log *logger.Logger, notifiers ...Notifier) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		analyzer:   analyzer,
		reconciler: reconciler,
		notifiers:  notifiers,
		opts:       opts,
		logger:     log.Named("scan"),
		baseCtx:    ctx,
		cancel:     cancel,
		tabOrigins: make(map[string]string),
		tabURLs:    make(map[string]string),
		pending:    make(map[string]pendingSummary),
		scanned:    make(map[string]struct{}),
	}
	if c.opts.Locator == nil {
		c.opts.Locator = c.lastURL
	}
	return c
}

// Navigate handles a completed navigation of tabID to rawURL. A bearer
// token carried by ctx is used for the calls this navigation triggers.
// It returns the normalized origin.
func (c *Coordinator) Navigate(ctx context.Context, tabID, rawURL string) (string, error) {
	origin, err := NormalizeOrigin(rawURL)
	if err != nil {
		// Leaving for a page without an origin still supersedes the old one.
		c.mu.Lock()
		if !c.closed {
			c.tabURLs[tabID] = rawURL
			c.cancelPendingLocked(tabID)
			delete(c.tabOrigins, tabID)
		}
		c.mu.Unlock()
		c.logger.Debug("ignoring navigation", zap.String("tab_id", tabID), zap.String("url", rawURL))
		return "", err
	}
	token := auth.TokenFromContext(ctx)
	log := c.logger.WithTab(tabID, origin)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return origin, nil
	}

	c.tabURLs[tabID] = rawURL
	if c.tabOrigins[tabID] == origin {
		return origin, nil
	}

	c.cancelPendingLocked(tabID)
	c.tabOrigins[tabID] = origin

	if _, done := c.scanned[origin]; done {
		metrics.DuplicateScansTotal.Inc()
		log.Info("origin already scanned, skipping collector")
	} else if callCtx, ok := c.callContext(token, log); ok {
		c.scanned[origin] = struct{}{}
		c.wg.Add(1)
		go c.collect(callCtx, origin, log)
	}

	c.nextID++
	id := c.nextID
	timer := c.opts.Clock.AfterFunc(c.opts.QuietPeriod, func() {
		c.summarize(tabID, origin, id, token)
	})
	c.pending[tabID] = pendingSummary{timer: timer, id: id}
	metrics.PendingTimers.Set(float64(len(c.pending)))

	return origin, nil
}

// CloseTab forgets tabID and cancels its pending summary.
func (c *Coordinator) CloseTab(tabID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelPendingLocked(tabID)
	delete(c.tabOrigins, tabID)
	delete(c.tabURLs, tabID)
	for _, n := range c.notifiers {
		if cl, ok := n.(clearer); ok {
			cl.Clear(tabID)
		}
	}
}

// HandleEvent dispatches a tab lifecycle event.
func (c *Coordinator) HandleEvent(ctx context.Context, ev model.TabEvent) error {
	if ev.Token != "" {
		ctx = auth.WithToken(ctx, ev.Token)
	}
	switch ev.Type {
	case model.TabEventNavigate:
		_, err := c.Navigate(ctx, ev.TabID, ev.URL)
		return err
	case model.TabEventClose:
		c.CloseTab(ev.TabID)
		return nil
	default:
		return errors.New("unknown tab event type " + string(ev.Type))
	}
}

// Scanned reports whether the collector has been invoked for origin.
func (c *Coordinator) Scanned(origin string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.scanned[origin]
	return ok
}

// Stats returns counts of tracked state.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Tabs:           len(c.tabOrigins),
		PendingTimers:  len(c.pending),
		ScannedOrigins: len(c.scanned),
	}
}

// Wait blocks until in-flight collector calls have returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close cancels every pending timer and in-flight call.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for tabID := range c.pending {
		c.cancelPendingLocked(tabID)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

func (c *Coordinator) cancelPendingLocked(tabID string) {
	if p, ok := c.pending[tabID]; ok {
		p.timer.Stop()
		delete(c.pending, tabID)
		metrics.PendingTimers.Set(float64(len(c.pending)))
	}
}

func (c *Coordinator) lastURL(tabID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.tabURLs[tabID]
	return u, ok
}

// callContext builds the context for a backend call made on behalf of a
// navigation. ok is false when credentials are required but unavailable.
func (c *Coordinator) callContext(token string, log *logger.Logger) (context.Context, bool) {
	ctx := c.baseCtx
	if token != "" {
		ctx = auth.WithToken(ctx, token)
	}
	if c.opts.Credentials == nil {
		return ctx, true
	}
	resolved, err := c.opts.Credentials.Token(ctx)
	if err != nil {
		log.Warn("no credential available, skipping protected call", zap.Error(err))
		return ctx, false
	}
	return auth.WithToken(ctx, resolved), true
}

func (c *Coordinator) collect(ctx context.Context, origin string, log *logger.Logger) {
	defer c.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	log.Info("collecting policy documents")
	if err := c.analyzer.Collect(ctx, origin); err != nil {
		metrics.CollectorCallsTotal.WithLabelValues("error").Inc()
		log.Error("collector call failed", zap.Error(err))
		return
	}
	metrics.CollectorCallsTotal.WithLabelValues("success").Inc()
}

// summarize runs when a tab's quiet period ends.
func (c *Coordinator) summarize(tabID, origin string, id uint64, token string) {
	c.mu.Lock()
	p, ok := c.pending[tabID]
	if c.closed || !ok || p.id != id {
		c.mu.Unlock()
		return
	}
	delete(c.pending, tabID)
	metrics.PendingTimers.Set(float64(len(c.pending)))
	c.mu.Unlock()

	log := c.logger.WithTab(tabID, origin)

	currentURL, ok := c.opts.Locator(tabID)
	if !ok {
		log.Info("tab no longer exists, skipping summary")
		return
	}
	if current, err := NormalizeOrigin(currentURL); err != nil || current != origin {
		log.Info("tab navigated away, skipping summary", zap.String("current_url", currentURL))
		return
	}

	ctx, ok := c.callContext(token, log)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	ticket := c.reconciler.Begin(origin)
	summary, err := c.analyzer.Summary(ctx, origin)
	if err != nil {
		metrics.SummaryFetchesTotal.WithLabelValues("coordinator", "error").Inc()
		log.Error("summary call failed", zap.Error(err))
		return
	}
	metrics.SummaryFetchesTotal.WithLabelValues("coordinator", "success").Inc()

	if _, err := c.reconciler.Commit(ctx, ticket, summary); err != nil {
		if errors.Is(err, cache.ErrStale) {
			log.Info("newer summary already cached")
		} else {
			log.Error("failed to cache summary", zap.Error(err))
		}
		return
	}

	ev := model.BadgeEvent{
		TabID:     tabID,
		Origin:    origin,
		Text:      BadgeText,
		CreatedAt: c.opts.Clock.Now(),
	}
	for _, n := range c.notifiers {
		n.NewResult(ctx, ev)
	}
	log.Info("summary cached", zap.String("risk_level", summary.RiskLevel))
}
