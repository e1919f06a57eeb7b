package executor

import (
	"context"
	"errors"
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

var (
	legSell = domain.Leg{Venue: "va", Symbol: "BTCUSDT", Category: domain.CategoryLinear, Side: domain.SideSell}
	legBuy  = domain.Leg{Venue: "vb", Symbol: "BTCUSDT", Category: domain.CategorySpot, Side: domain.SideBuy}
)

func newVenues() (*venuetest.Client, *venuetest.Client, venuetest.Resolver) {
	a, b := venuetest.New("va"), venuetest.New("vb")
	return a, b, venuetest.NewResolver(a, b)
}

func TestExecuteBothLegsFill(t *testing.T) {
	a, b, res := newVenues()
	ex := New(res, time.Second, discardLogger())

	out := ex.Execute(context.Background(), legSell, legBuy, decimal.RequireFromString("0.01"))

	require.True(t, out.Success())
	assert.False(t, out.RolledBack)
	assert.Nil(t, out.Rollback)
	assert.Equal(t, "va-1", out.A.Result.OrderID)
	assert.Equal(t, "vb-1", out.B.Result.OrderID)
	require.Len(t, a.Orders(), 1)
	require.Len(t, b.Orders(), 1)
	assert.Equal(t, domain.SideSell, a.Orders()[0].Side)
	assert.True(t, a.Orders()[0].Qty.Equal(decimal.RequireFromString("0.01")))
	assert.Equal(t, 2, out.Sequence.OrderCount())
}

func TestExecuteFirstLegFailureUndoesNothing(t *testing.T) {
	a, b, res := newVenues()
	a.FailNext("insufficient margin")
	ex := New(res, time.Second, discardLogger())

	out := ex.Execute(context.Background(), legSell, legBuy, decimal.NewFromInt(1))

	assert.False(t, out.Success())
	assert.False(t, out.RolledBack)
	assert.Len(t, a.Orders(), 1)
	assert.Empty(t, b.Orders(), "second leg must not be attempted")
	assert.False(t, out.B.Attempted)
	assert.Equal(t, "insufficient margin", out.Sequence.FailureMessage())
}

func TestExecuteSecondLegFailureReversesFirst(t *testing.T) {
	a, b, res := newVenues()
	b.FailNextErr(errors.New("connection reset"))
	ex := New(res, time.Second, discardLogger())
	qty := decimal.RequireFromString("0.5")

	out := ex.Execute(context.Background(), legSell, legBuy, qty)

	assert.False(t, out.Success())
	require.True(t, out.RolledBack)
	require.NotNil(t, out.Rollback)
	assert.True(t, out.Rollback.Result.Success)
	assert.Equal(t, "va-1", out.Rollback.OriginalOrderID)

	orders := a.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, domain.SideSell, orders[0].Side)
	assert.Equal(t, domain.SideBuy, orders[1].Side, "rollback uses the opposite side")
	assert.True(t, orders[1].Qty.Equal(qty), "rollback uses the same quantity")
	assert.Equal(t, legSell.Symbol, orders[1].Symbol)
	assert.Equal(t, legSell.Category, orders[1].Category)
	assert.Equal(t, 3, out.Sequence.OrderCount())
	assert.False(t, out.Sequence.RollbackFailed())
}

func TestExecuteRollbackFailureIsReported(t *testing.T) {
	a, b, res := newVenues()
	b.FailNext("rejected")
	a.FailSide(domain.SideBuy, "venue down")
	ex := New(res, time.Second, discardLogger())

	out := ex.Execute(context.Background(), legSell, legBuy, decimal.NewFromInt(1))

	assert.False(t, out.Success())
	assert.True(t, out.RolledBack)
	assert.True(t, out.Sequence.RollbackFailed())
	assert.Equal(t, "venue down", out.Rollback.Result.Message)
}

func TestExecuteSequenceReversesAllPriorLegsNewestFirst(t *testing.T) {
	a, b, res := newVenues()
	c := venuetest.New("vc")
	res[c.Name()] = c
	c.FailNext("no liquidity")
	ex := New(res, time.Second, discardLogger())
	legC := domain.Leg{Venue: "vc", Symbol: "BTCUSD", Category: domain.CategoryInverse, Side: domain.SideSell}

	out := ex.ExecuteSequence(context.Background(), []domain.Leg{legSell, legBuy, legC}, decimal.NewFromInt(2))

	assert.Equal(t, 2, out.FailedIndex)
	require.Len(t, out.Rollbacks, 2)
	assert.Equal(t, "vb", out.Rollbacks[0].Leg.Venue)
	assert.Equal(t, domain.SideSell, out.Rollbacks[0].Leg.Side)
	assert.Equal(t, "va", out.Rollbacks[1].Leg.Venue)
	assert.Equal(t, domain.SideBuy, out.Rollbacks[1].Leg.Side)
	assert.Len(t, a.Orders(), 2)
	assert.Len(t, b.Orders(), 2)
}

func TestExecuteIgnoresCallerCancellation(t *testing.T) {
	_, b, res := newVenues()
	ctx, cancel := context.WithCancel(context.Background())
	b.SetPlaceFunc(func(req domain.OrderRequest) (domain.OrderResult, error) {
		cancel()
		return domain.OrderResult{Success: true, OrderID: "vb-x", Price: 1}, nil
	})
	ex := New(res, time.Second, discardLogger())

	out := ex.Execute(ctx, legSell, legBuy, decimal.NewFromInt(1))
	assert.True(t, out.Success())
}

func TestExecuteTransportErrorIsFailure(t *testing.T) {
	_, b, res := newVenues()
	b.SetPlaceFunc(func(req domain.OrderRequest) (domain.OrderResult, error) {
		return domain.OrderResult{}, context.DeadlineExceeded
	})
	ex := New(res, 20*time.Millisecond, discardLogger())

	out := ex.Execute(context.Background(), legSell, legBuy, decimal.NewFromInt(1))
	assert.False(t, out.Success())
	assert.True(t, out.RolledBack)
	assert.Contains(t, out.B.Result.Message, "deadline exceeded")
}

func TestUnknownVenueFailsLeg(t *testing.T) {
	ex := New(venuetest.Resolver{}, time.Second, discardLogger())
	out := ex.Execute(context.Background(), legSell, legBuy, decimal.NewFromInt(1))
	assert.False(t, out.Success())
	assert.Contains(t, out.A.Result.Message, "unknown venue")
}

func TestLegResults(t *testing.T) {
	_, b, res := newVenues()
	b.FailNext("rejected")
	ex := New(res, time.Second, discardLogger())
	qty := decimal.RequireFromString("0.25")
	seq := ex.ExecuteSequence(context.Background(), []domain.Leg{legSell, legBuy}, qty)

	lr := LegResults(seq, qty)
	require.Len(t, lr, 2)
	assert.True(t, lr[0].Success)
	assert.Equal(t, 0.25, lr[0].Qty)
	assert.Equal(t, "rejected", lr[1].Error)

	rb := RollbackLegResult(seq.Rollbacks[0], qty)
	assert.Equal(t, "va-1", rb.OriginalOrderID)
	assert.Equal(t, domain.SideBuy, rb.Side)
}
