package domain

import "github.com/shopspring/decimal"

// OrderRequest is a market order submitted to a venue for one leg.
type OrderRequest struct {
	Symbol   string
	Category MarketCategory
	Side     Side
	Qty      decimal.Decimal
	// ClientID is an optional idempotency key forwarded to the venue.
	ClientID string
}

// OrderResult is the venue's answer to an order submission. A zero Price on a
// successful result means the fill price was not known at placement time.
type OrderResult struct {
	Success bool
	OrderID string
	Price   float64
	Message string
}
