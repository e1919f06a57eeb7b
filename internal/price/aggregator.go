// Package price merges streamed and pulled top-of-book quotes into one
// freshness-checked read path shared by the strategy engines.
package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Aggregator resolves a best bid/ask by trying, in order, the push feed, its
// own cache and finally a pull request to the venue.
type Aggregator struct {
	push          domain.PushFeed
	venues        domain.VenueResolver
	defaultMaxAge time.Duration
	now           func() time.Time
	logger        *slog.Logger

	mu    sync.Mutex
	cache map[domain.QuoteKey]domain.TopOfBook
}

var _ domain.QuoteProvider = (*Aggregator)(nil)

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock overrides the wall clock used for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithDefaultMaxAge sets the freshness window used when callers pass zero.
func WithDefaultMaxAge(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.defaultMaxAge = d
		}
	}
}

// NewAggregator creates an Aggregator. push may be nil when no stream is
// configured.
func NewAggregator(push domain.PushFeed, venues domain.VenueResolver, logger *slog.Logger, opts ...Option) *Aggregator {
	a := &Aggregator{
		push:          push,
		venues:        venues,
		defaultMaxAge: domain.DefaultQuoteMaxAge,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "price_aggregator")),
		cache:         make(map[domain.QuoteKey]domain.TopOfBook),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetTopOfBook returns a valid quote for the series. It returns
// domain.ErrQuoteUnavailable when no source can supply one.
func (a *Aggregator) GetTopOfBook(
	ctx context.Context,
	venue, symbol string,
	category domain.MarketCategory,
	maxAge time.Duration,
) (domain.TopOfBook, error) {
	if maxAge <= 0 {
		maxAge = a.defaultMaxAge
	}
	key := domain.QuoteKey{Venue: venue, Symbol: symbol, Category: category}

	if a.push != nil {
		q, err := a.push.GetTopOfBook(ctx, venue, symbol, category)
		switch {
		case err == nil && q.Valid() && q.Fresh(a.now(), maxAge):
			q = normalize(q, key, domain.QuoteSourcePush)
			a.store(q)
			return q, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			a.logger.DebugContext(ctx, "push feed read failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	if q, ok := a.cached(key, maxAge); ok {
		return q, nil
	}

	q, err := a.pull(ctx, key)
	if err != nil {
		a.logger.DebugContext(ctx, "pull quote failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
		return domain.TopOfBook{}, fmt.Errorf("price: %s: %w", key, domain.ErrQuoteUnavailable)
	}
	if !q.Valid() {
		return domain.TopOfBook{}, fmt.Errorf("price: %s: invalid pulled quote: %w", key, domain.ErrQuoteUnavailable)
	}
	if q.TimestampMs <= 0 {
		q.TimestampMs = a.now().UnixMilli()
	}
	q = normalize(q, key, domain.QuoteSourcePull)
	a.store(q)
	return q, nil
}

func (a *Aggregator) pull(ctx context.Context, key domain.QuoteKey) (domain.TopOfBook, error) {
	if a.venues == nil {
		return domain.TopOfBook{}, domain.ErrUnknownVenue
	}
	client, err := a.venues.Client(key.Venue)
	if err != nil {
		return domain.TopOfBook{}, err
	}
	return client.GetTopOfBook(ctx, key.Symbol, key.Category)
}

func (a *Aggregator) cached(key domain.QuoteKey, maxAge time.Duration) (domain.TopOfBook, bool) {
	a.mu.Lock()
	q, ok := a.cache[key]
	a.mu.Unlock()
	if !ok || !q.Valid() || !q.Fresh(a.now(), maxAge) {
		return domain.TopOfBook{}, false
	}
	q.Source = domain.QuoteSourceCache
	return q, true
}

func (a *Aggregator) store(q domain.TopOfBook) {
	a.mu.Lock()
	a.cache[q.Key()] = q
	a.mu.Unlock()
}

// ClearCache drops every cached quote.
func (a *Aggregator) ClearCache() {
	a.mu.Lock()
	a.cache = make(map[domain.QuoteKey]domain.TopOfBook)
	a.mu.Unlock()
}

// ClearVenue drops every cached quote of one venue.
func (a *Aggregator) ClearVenue(venue string) {
	a.mu.Lock()
	for k := range a.cache {
		if k.Venue == venue {
			delete(a.cache, k)
		}
	}
	a.mu.Unlock()
}

// ClearKey drops one cached series.
func (a *Aggregator) ClearKey(venue, symbol string, category domain.MarketCategory) {
	a.mu.Lock()
	delete(a.cache, domain.QuoteKey{Venue: venue, Symbol: symbol, Category: category})
	a.mu.Unlock()
}

// normalize stamps the series identity and source onto q.
func normalize(q domain.TopOfBook, key domain.QuoteKey, src domain.QuoteSource) domain.TopOfBook {
	q.Venue = key.Venue
	q.Symbol = key.Symbol
	q.Category = key.Category
	q.Source = src
	return q
}
