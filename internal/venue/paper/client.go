// Package paper is a simulated venue that fills market orders against the
// latest streamed quotes.
package paper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type order struct {
	symbol   string
	category domain.MarketCategory
	side     domain.Side
	price    float64
}

// Client implements domain.VenueClient without touching a real exchange.
// Sells fill at the bid and buys at the ask, adjusted by the configured
// slippage. An order placed while no quote is known succeeds with a zero
// price and is priced later by GetFillPrice.
type Client struct {
	name    string
	quotes  domain.PushFeed
	slipBps int
	logger  *slog.Logger

	mu     sync.Mutex
	orders map[string]*order
}

var _ domain.VenueClient = (*Client)(nil)

// NewClient creates a paper venue reading quotes from feed.
func NewClient(name string, feed domain.PushFeed, slipBps int, logger *slog.Logger) *Client {
	return &Client{
		name:    name,
		quotes:  feed,
		slipBps: slipBps,
		logger:  logger.With(slog.String("component", "paper_venue"), slog.String("venue", name)),
		orders:  make(map[string]*order),
	}
}

// Name implements domain.VenueClient.
func (c *Client) Name() string { return c.name }

// PlaceOrder implements domain.VenueClient.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if !req.Qty.IsPositive() || !req.Side.Valid() || req.Symbol == "" {
		return domain.OrderResult{Success: false, Message: domain.ErrInvalidOrder.Error()}, nil
	}
	price := c.execPrice(ctx, req.Symbol, req.Category, req.Side)

	id := uuid.NewString()
	c.mu.Lock()
	c.orders[id] = &order{symbol: req.Symbol, category: req.Category, side: req.Side, price: price}
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "paper fill",
		slog.String("order_id", id),
		slog.String("symbol", req.Symbol),
		slog.String("side", string(req.Side)),
		slog.String("qty", req.Qty.String()),
		slog.Float64("price", price),
	)
	return domain.OrderResult{Success: true, OrderID: id, Price: price}, nil
}

// GetFillPrice implements domain.VenueClient. An order that filled without a
// quote is priced at the first quote seen afterwards.
func (c *Client) GetFillPrice(ctx context.Context, orderID, _ string, _ domain.MarketCategory) (float64, error) {
	c.mu.Lock()
	o, ok := c.orders[orderID]
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("paper: order %s: %w", orderID, domain.ErrNotFound)
	}
	if o.price > 0 {
		return o.price, nil
	}
	price := c.execPrice(ctx, o.symbol, o.category, o.side)
	if price > 0 {
		c.mu.Lock()
		o.price = price
		c.mu.Unlock()
	}
	return price, nil
}

// GetTopOfBook implements domain.VenueClient by reading the stream snapshot.
func (c *Client) GetTopOfBook(ctx context.Context, symbol string, category domain.MarketCategory) (domain.TopOfBook, error) {
	if c.quotes == nil {
		return domain.TopOfBook{}, fmt.Errorf("paper: %s: %w", symbol, domain.ErrQuoteUnavailable)
	}
	q, err := c.quotes.GetTopOfBook(ctx, c.name, symbol, category)
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("paper: %s: %w", symbol, err)
	}
	q.Source = domain.QuoteSourcePull
	return q, nil
}

func (c *Client) execPrice(ctx context.Context, symbol string, category domain.MarketCategory, side domain.Side) float64 {
	q, err := c.GetTopOfBook(ctx, symbol, category)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrQuoteUnavailable) {
			c.logger.WarnContext(ctx, "paper quote lookup failed", slog.String("error", err.Error()))
		}
		return 0
	}
	if !q.Valid() {
		return 0
	}
	px := q.ExecPrice(side)
	slip := px * float64(c.slipBps) / 10_000
	if side == domain.SideBuy {
		return px + slip
	}
	return px - slip
}
