package domain

import "time"

// QuoteSource records where a top-of-book snapshot came from.
type QuoteSource string

const (
	QuoteSourcePush  QuoteSource = "push"
	QuoteSourcePull  QuoteSource = "pull"
	QuoteSourceCache QuoteSource = "cache"
)

// DefaultQuoteMaxAge is the freshness window applied when a caller does not
// supply one.
const DefaultQuoteMaxAge = 5 * time.Second

// TopOfBook is the best bid and ask of one venue/symbol/category.
type TopOfBook struct {
	Venue       string         `json:"venue"`
	Symbol      string         `json:"symbol"`
	Category    MarketCategory `json:"marketCategory"`
	BidPrice    float64        `json:"bidPrice"`
	BidQty      float64        `json:"bidQty"`
	AskPrice    float64        `json:"askPrice"`
	AskQty      float64        `json:"askQty"`
	TimestampMs int64          `json:"timestampMs"`
	Source      QuoteSource    `json:"source"`
}

// Valid reports whether all four book values are positive and the book is
// not crossed.
func (q TopOfBook) Valid() bool {
	return q.BidPrice > 0 && q.BidQty > 0 && q.AskPrice > 0 && q.AskQty > 0 &&
		q.AskPrice >= q.BidPrice
}

// Fresh reports whether the snapshot is younger than maxAge at now.
func (q TopOfBook) Fresh(now time.Time, maxAge time.Duration) bool {
	if q.TimestampMs <= 0 {
		return false
	}
	return now.UnixMilli()-q.TimestampMs < maxAge.Milliseconds()
}

// ExecPrice returns the price a market order on side would execute against:
// the bid for sells and the ask for buys.
func (q TopOfBook) ExecPrice(side Side) float64 {
	if side == SideSell {
		return q.BidPrice
	}
	return q.AskPrice
}

// Mid returns the midpoint of bid and ask.
func (q TopOfBook) Mid() float64 {
	return (q.BidPrice + q.AskPrice) / 2
}

// QuoteKey identifies a top-of-book series.
type QuoteKey struct {
	Venue    string
	Symbol   string
	Category MarketCategory
}

// Key returns the series key of q.
func (q TopOfBook) Key() QuoteKey {
	return QuoteKey{Venue: q.Venue, Symbol: q.Symbol, Category: q.Category}
}

func (k QuoteKey) String() string {
	return k.Venue + ":" + string(k.Category) + ":" + k.Symbol
}
