package domain

import (
	"fmt"
	"strings"
)

// Side is the direction of a leg or order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the reversing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is buy or sell.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// MarketCategory selects the product line of a venue.
type MarketCategory string

const (
	CategorySpot    MarketCategory = "spot"
	CategoryLinear  MarketCategory = "linear"  // USD-margined perpetuals
	CategoryInverse MarketCategory = "inverse" // coin-margined perpetuals
)

// Valid reports whether c is a known category.
func (c MarketCategory) Valid() bool {
	switch c {
	case CategorySpot, CategoryLinear, CategoryInverse:
		return true
	}
	return false
}

// Leg is one side of a coupled cross-venue trade. A leg is immutable once it
// belongs to a pair or plan.
type Leg struct {
	Venue    string         `json:"venue"`
	Symbol   string         `json:"symbol"`
	Category MarketCategory `json:"marketCategory"`
	Side     Side           `json:"side"`
}

// Validate checks the leg for missing or unknown fields.
func (l Leg) Validate() error {
	var errs []string
	if strings.TrimSpace(l.Venue) == "" {
		errs = append(errs, "venue is empty")
	}
	if strings.TrimSpace(l.Symbol) == "" {
		errs = append(errs, "symbol is empty")
	}
	if !l.Category.Valid() {
		errs = append(errs, fmt.Sprintf("unknown category %q", l.Category))
	}
	if !l.Side.Valid() {
		errs = append(errs, fmt.Sprintf("unknown side %q", l.Side))
	}
	if len(errs) > 0 {
		return fmt.Errorf("leg %s/%s: %s", l.Venue, l.Symbol, strings.Join(errs, ", "))
	}
	return nil
}

// Reversed returns the same leg with the opposite side.
func (l Leg) Reversed() Leg {
	l.Side = l.Side.Opposite()
	return l
}

// String renders the leg as venue:category:symbol:side.
func (l Leg) String() string {
	return l.Venue + ":" + string(l.Category) + ":" + l.Symbol + ":" + string(l.Side)
}
