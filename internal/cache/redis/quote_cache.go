package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// QuoteCache stores the latest streamed top-of-book per series as a Redis
// hash at "{prefix}:quote:{venue}:{category}:{symbol}", so several processes
// can share one push feed.
type QuoteCache struct {
	client *Client
	rdb    *redis.Client
	ttl    time.Duration
}

var (
	_ domain.PushFeed  = (*QuoteCache)(nil)
	_ domain.QuoteSink = (*QuoteCache)(nil)
)

// NewQuoteCache creates a QuoteCache. ttl > 0 expires series that stop
// updating.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{client: c, rdb: c.Underlying(), ttl: ttl}
}

func (qc *QuoteCache) key(venue string, category domain.MarketCategory, symbol string) string {
	return qc.client.Key("quote", venue, string(category), symbol)
}

// SetTopOfBook implements domain.QuoteSink.
func (qc *QuoteCache) SetTopOfBook(ctx context.Context, q domain.TopOfBook) error {
	key := qc.key(q.Venue, q.Category, q.Symbol)
	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, quoteFields(q))
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", key, err)
	}
	return nil
}

// GetTopOfBook implements domain.PushFeed. It returns domain.ErrNotFound when
// the series has never been written or has expired.
func (qc *QuoteCache) GetTopOfBook(ctx context.Context, venue, symbol string, category domain.MarketCategory) (domain.TopOfBook, error) {
	key := qc.key(venue, category, symbol)
	vals, err := qc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.TopOfBook{}, fmt.Errorf("redis: quote %s: %w", key, domain.ErrNotFound)
	}
	q, err := parseQuote(vals)
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("redis: parse quote %s: %w", key, err)
	}
	q.Venue, q.Symbol, q.Category = venue, symbol, category
	return q, nil
}

func quoteFields(q domain.TopOfBook) map[string]interface{} {
	return map[string]interface{}{
		"bid":    strconv.FormatFloat(q.BidPrice, 'f', -1, 64),
		"bidQty": strconv.FormatFloat(q.BidQty, 'f', -1, 64),
		"ask":    strconv.FormatFloat(q.AskPrice, 'f', -1, 64),
		"askQty": strconv.FormatFloat(q.AskQty, 'f', -1, 64),
		"ts":     strconv.FormatInt(q.TimestampMs, 10),
		"source": string(q.Source),
	}
}

func parseQuote(vals map[string]string) (domain.TopOfBook, error) {
	var q domain.TopOfBook
	floats := []struct {
		field string
		dst   *float64
	}{
		{"bid", &q.BidPrice},
		{"bidQty", &q.BidQty},
		{"ask", &q.AskPrice},
		{"askQty", &q.AskQty},
	}
	for _, f := range floats {
		s, ok := vals[f.field]
		if !ok {
			return q, fmt.Errorf("missing field %q: %w", f.field, domain.ErrNotFound)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return q, fmt.Errorf("field %q: %w", f.field, err)
		}
		*f.dst = v
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return q, fmt.Errorf("field \"ts\": %w", err)
	}
	q.TimestampMs = ts
	q.Source = domain.QuoteSource(vals["source"])
	if q.Source == "" {
		q.Source = domain.QuoteSourcePush
	}
	return q, nil
}
