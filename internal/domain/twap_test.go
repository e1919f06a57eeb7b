package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(TwapPending, TwapRunning))
	assert.True(t, CanTransition(TwapRunning, TwapPaused))
	assert.True(t, CanTransition(TwapPaused, TwapRunning))
	assert.True(t, CanTransition(TwapRunning, TwapCompleted))
	assert.False(t, CanTransition(TwapPending, TwapPaused))
	assert.False(t, CanTransition(TwapCompleted, TwapRunning))
	assert.False(t, CanTransition(TwapCancelled, TwapRunning))
	assert.False(t, CanTransition(TwapPaused, TwapCompleted))
	for _, s := range []TwapState{TwapCompleted, TwapCancelled, TwapFailed} {
		assert.True(t, s.Terminal())
	}
}

func samplePlan() TwapPlan {
	return TwapPlan{
		ID:         "t1",
		TotalQty:   decimal.NewFromInt(1),
		SliceQty:   decimal.RequireFromString("0.25"),
		IntervalMs: 60000,
		Legs: []Leg{
			{Venue: "va", Symbol: "BTCUSDT", Category: CategorySpot, Side: SideBuy},
			{Venue: "vb", Symbol: "BTCUSDT", Category: CategoryLinear, Side: SideSell},
		},
		State: TwapPending,
	}
}

func TestTwapPlanValidate(t *testing.T) {
	require.NoError(t, samplePlan().Validate())

	p := samplePlan()
	p.SliceQty = decimal.NewFromInt(2)
	assert.ErrorIs(t, p.Validate(), ErrInvalidPlan)

	p = samplePlan()
	p.Legs = nil
	assert.ErrorIs(t, p.Validate(), ErrInvalidPlan)

	p = samplePlan()
	p.IntervalMs = 0
	assert.ErrorIs(t, p.Validate(), ErrInvalidPlan)
}

func TestTwapProgressAccounting(t *testing.T) {
	p := samplePlan()
	p.TotalQty = decimal.RequireFromString("1.1")
	assert.Equal(t, 4, p.SlicesTotal())

	prog := NewTwapProgress(p)
	for i := 0; i < 4; i++ {
		prog.RecordSlice(p.TotalQty, p.SliceQty)
		assert.True(t, prog.ExecutedQty.Add(prog.RemainingQty).Equal(p.TotalQty))
	}
	assert.True(t, prog.Done())
	assert.True(t, prog.RemainingQty.Equal(decimal.RequireFromString("0.1")))
}
