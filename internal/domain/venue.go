package domain

import (
	"context"
	"time"
)

// VenueClient is the contract every execution venue adapter satisfies.
type VenueClient interface {
	// Name is the venue identifier used in legs.
	Name() string
	// PlaceOrder submits a market order. A venue rejection is reported as
	// OrderResult{Success: false}; transport failures are returned as errors.
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	// GetFillPrice returns the average fill price of an order, or 0 when the
	// venue does not know it yet.
	GetFillPrice(ctx context.Context, orderID, symbol string, category MarketCategory) (float64, error)
	// GetTopOfBook pulls the current best bid/ask.
	GetTopOfBook(ctx context.Context, symbol string, category MarketCategory) (TopOfBook, error)
}

// VenueResolver looks up a registered venue adapter by name.
type VenueResolver interface {
	Client(venue string) (VenueClient, error)
}

// PushFeed exposes the most recent streamed snapshot per series.
// ErrNotFound is returned when nothing has been received for the key.
type PushFeed interface {
	GetTopOfBook(ctx context.Context, venue, symbol string, category MarketCategory) (TopOfBook, error)
}

// QuoteSink receives streamed snapshots.
type QuoteSink interface {
	SetTopOfBook(ctx context.Context, q TopOfBook) error
}

// QuoteProvider is the freshness-checked read path the engines consume.
type QuoteProvider interface {
	GetTopOfBook(ctx context.Context, venue, symbol string, category MarketCategory, maxAge time.Duration) (TopOfBook, error)
}
