// Package venuetest provides a scriptable in-memory venue for tests.
package venuetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Client is a thread-safe fake domain.VenueClient. Orders succeed at the
// configured fill price unless a failure is scripted.
type Client struct {
	name string

	mu        sync.Mutex
	seq       int
	quotes    map[domain.QuoteKey]domain.TopOfBook
	quoteErr  error
	fillPrice float64
	fills     map[string]float64
	failures  []failure
	placeFn   func(req domain.OrderRequest) (domain.OrderResult, error)
	orders    []domain.OrderRequest
	fillCalls int
	pullCalls int
}

type failure struct {
	side    domain.Side // empty matches any side
	message string
	err     error
	sticky  bool
}

var _ domain.VenueClient = (*Client)(nil)

// New creates a venue that fills every order at 100.
func New(name string) *Client {
	return &Client{
		name:      name,
		quotes:    make(map[domain.QuoteKey]domain.TopOfBook),
		fillPrice: 100,
		fills:     make(map[string]float64),
	}
}

// Name implements domain.VenueClient.
func (c *Client) Name() string { return c.name }

// SetQuote installs the pull quote for a series, timestamped now.
func (c *Client) SetQuote(symbol string, category domain.MarketCategory, bid, ask float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := domain.QuoteKey{Venue: c.name, Symbol: symbol, Category: category}
	c.quotes[key] = domain.TopOfBook{
		Venue: c.name, Symbol: symbol, Category: category,
		BidPrice: bid, BidQty: 1, AskPrice: ask, AskQty: 1,
		TimestampMs: time.Now().UnixMilli(),
	}
}

// SetQuoteError makes every pull fail with err.
func (c *Client) SetQuoteError(err error) {
	c.mu.Lock()
	c.quoteErr = err
	c.mu.Unlock()
}

// SetFillPrice sets the price reported on successful placements. Zero
// simulates a venue that does not return the fill price synchronously.
func (c *Client) SetFillPrice(p float64) {
	c.mu.Lock()
	c.fillPrice = p
	c.mu.Unlock()
}

// SetFill makes GetFillPrice report price for orderID.
func (c *Client) SetFill(orderID string, price float64) {
	c.mu.Lock()
	c.fills[orderID] = price
	c.mu.Unlock()
}

// FailNext rejects the next placement with message.
func (c *Client) FailNext(message string) {
	c.mu.Lock()
	c.failures = append(c.failures, failure{message: message})
	c.mu.Unlock()
}

// FailNextErr fails the next placement with a transport error.
func (c *Client) FailNextErr(err error) {
	c.mu.Lock()
	c.failures = append(c.failures, failure{err: err})
	c.mu.Unlock()
}

// FailSide rejects every placement on side with message.
func (c *Client) FailSide(side domain.Side, message string) {
	c.mu.Lock()
	c.failures = append(c.failures, failure{side: side, message: message, sticky: true})
	c.mu.Unlock()
}

// SetPlaceFunc replaces placement behaviour entirely.
func (c *Client) SetPlaceFunc(fn func(req domain.OrderRequest) (domain.OrderResult, error)) {
	c.mu.Lock()
	c.placeFn = fn
	c.mu.Unlock()
}

// PlaceOrder implements domain.VenueClient.
func (c *Client) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	c.mu.Lock()
	c.orders = append(c.orders, req)
	fn := c.placeFn
	c.mu.Unlock()
	if fn != nil {
		return fn(req)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.failures {
		if f.side != "" && f.side != req.Side {
			continue
		}
		if !f.sticky {
			c.failures = append(c.failures[:i], c.failures[i+1:]...)
		}
		if f.err != nil {
			return domain.OrderResult{}, f.err
		}
		return domain.OrderResult{Success: false, Message: f.message}, nil
	}
	c.seq++
	id := fmt.Sprintf("%s-%d", c.name, c.seq)
	return domain.OrderResult{Success: true, OrderID: id, Price: c.fillPrice}, nil
}

// GetFillPrice implements domain.VenueClient.
func (c *Client) GetFillPrice(_ context.Context, orderID, _ string, _ domain.MarketCategory) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fillCalls++
	return c.fills[orderID], nil
}

// GetTopOfBook implements domain.VenueClient.
func (c *Client) GetTopOfBook(_ context.Context, symbol string, category domain.MarketCategory) (domain.TopOfBook, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pullCalls++
	if c.quoteErr != nil {
		return domain.TopOfBook{}, c.quoteErr
	}
	q, ok := c.quotes[domain.QuoteKey{Venue: c.name, Symbol: symbol, Category: category}]
	if !ok {
		return domain.TopOfBook{}, domain.ErrNotFound
	}
	return q, nil
}

// Orders returns a copy of every placement request received.
func (c *Client) Orders() []domain.OrderRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.OrderRequest(nil), c.orders...)
}

// FillCalls returns how many times GetFillPrice was called.
func (c *Client) FillCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fillCalls
}

// PullCalls returns how many times GetTopOfBook was called.
func (c *Client) PullCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pullCalls
}

// Resolver is a map-backed domain.VenueResolver.
type Resolver map[string]domain.VenueClient

// NewResolver indexes clients by name.
func NewResolver(clients ...*Client) Resolver {
	r := make(Resolver, len(clients))
	for _, c := range clients {
		r[c.Name()] = c
	}
	return r
}

// Client implements domain.VenueResolver.
func (r Resolver) Client(venue string) (domain.VenueClient, error) {
	c, ok := r[venue]
	if !ok {
		return nil, fmt.Errorf("venuetest: %q: %w", venue, domain.ErrUnknownVenue)
	}
	return c, nil
}

// PushFeed is a map-backed domain.PushFeed.
type PushFeed struct {
	mu     sync.Mutex
	quotes map[domain.QuoteKey]domain.TopOfBook
}

// NewPushFeed creates an empty PushFeed.
func NewPushFeed() *PushFeed {
	return &PushFeed{quotes: make(map[domain.QuoteKey]domain.TopOfBook)}
}

// Set stores q under its own key.
func (p *PushFeed) Set(q domain.TopOfBook) {
	p.mu.Lock()
	p.quotes[q.Key()] = q
	p.mu.Unlock()
}

// GetTopOfBook implements domain.PushFeed.
func (p *PushFeed) GetTopOfBook(_ context.Context, venue, symbol string, category domain.MarketCategory) (domain.TopOfBook, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.quotes[domain.QuoteKey{Venue: venue, Symbol: symbol, Category: category}]
	if !ok {
		return domain.TopOfBook{}, domain.ErrNotFound
	}
	return q, nil
}
