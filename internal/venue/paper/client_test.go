package paper

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/venue/venuetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quote(bid, ask float64) domain.TopOfBook {
	return domain.TopOfBook{
		Venue: "paper", Symbol: "BTCUSDT", Category: domain.CategorySpot,
		BidPrice: bid, BidQty: 1, AskPrice: ask, AskQty: 1,
		TimestampMs: time.Now().UnixMilli(), Source: domain.QuoteSourcePush,
	}
}

func TestPaperFillsAtTouchWithSlippage(t *testing.T) {
	feed := venuetest.NewPushFeed()
	feed.Set(quote(100, 101))
	c := NewClient("paper", feed, 10, discardLogger())
	ctx := context.Background()

	buy, err := c.PlaceOrder(ctx, domain.OrderRequest{Symbol: "BTCUSDT", Category: domain.CategorySpot, Side: domain.SideBuy, Qty: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.True(t, buy.Success)
	assert.InDelta(t, 101.101, buy.Price, 1e-9)

	sell, err := c.PlaceOrder(ctx, domain.OrderRequest{Symbol: "BTCUSDT", Category: domain.CategorySpot, Side: domain.SideSell, Qty: decimal.NewFromInt(1)})
	require.NoError(t, err)
	assert.InDelta(t, 99.9, sell.Price, 1e-9)
	assert.NotEqual(t, buy.OrderID, sell.OrderID)
}

func TestPaperPricesLaterWhenNoQuote(t *testing.T) {
	feed := venuetest.NewPushFeed()
	c := NewClient("paper", feed, 0, discardLogger())
	ctx := context.Background()

	res, err := c.PlaceOrder(ctx, domain.OrderRequest{Symbol: "BTCUSDT", Category: domain.CategorySpot, Side: domain.SideSell, Qty: decimal.NewFromInt(1)})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Zero(t, res.Price)

	price, err := c.GetFillPrice(ctx, res.OrderID, "BTCUSDT", domain.CategorySpot)
	require.NoError(t, err)
	assert.Zero(t, price)

	feed.Set(quote(100, 101))
	price, err = c.GetFillPrice(ctx, res.OrderID, "BTCUSDT", domain.CategorySpot)
	require.NoError(t, err)
	assert.Equal(t, 100.0, price)

	_, err = c.GetFillPrice(ctx, "unknown", "BTCUSDT", domain.CategorySpot)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPaperRejectsInvalidOrder(t *testing.T) {
	c := NewClient("paper", nil, 0, discardLogger())
	res, err := c.PlaceOrder(context.Background(), domain.OrderRequest{Symbol: "BTCUSDT", Side: domain.SideBuy})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

func TestPaperTopOfBookMarkedPull(t *testing.T) {
	feed := venuetest.NewPushFeed()
	feed.Set(quote(100, 101))
	c := NewClient("paper", feed, 0, discardLogger())

	q, err := c.GetTopOfBook(context.Background(), "BTCUSDT", domain.CategorySpot)
	require.NoError(t, err)
	assert.Equal(t, domain.QuoteSourcePull, q.Source)
}
