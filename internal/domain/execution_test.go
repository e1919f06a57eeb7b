package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFillPriceRecomputes(t *testing.T) {
	l1 := NewLegResult(Leg{Venue: "va", Symbol: "BTCUSDT", Category: CategoryLinear, Side: SideSell}, 0.5)
	l1.Success, l1.OrderID, l1.Price = true, "a-1", 101
	l2 := NewLegResult(Leg{Venue: "vb", Symbol: "BTCUSDT", Category: CategoryLinear, Side: SideBuy}, 0.5)
	l2.Success, l2.OrderID = true, "b-1"

	var rec ExecutionRecord
	rec.SetLegs([]LegResult{l1, l2})
	rec.Recompute()
	assert.InDelta(t, 50.5, rec.TotalAmount, 1e-9)
	assert.Zero(t, rec.Spread)

	require.True(t, rec.ApplyFillPrice("b-1", 100))
	assert.True(t, rec.Leg2.PriceUpdated)
	assert.InDelta(t, 100.5, rec.TotalAmount, 1e-9)
	assert.InDelta(t, 1, rec.Spread, 1e-9)

	assert.False(t, rec.ApplyFillPrice("missing", 1))
}

func TestSetLegsKeepsFullListBeyondTwo(t *testing.T) {
	legs := []LegResult{{OrderID: "1"}, {OrderID: "2"}, {OrderID: "3"}}
	var rec ExecutionRecord
	rec.SetLegs(legs)
	assert.Len(t, rec.AllLegs(), 3)
	assert.True(t, rec.HasOrder("3"))

	rec.SetLegs(legs[:1])
	assert.Nil(t, rec.Leg2)
	assert.Len(t, rec.AllLegs(), 1)
}

func TestExecutionRecordLineKeys(t *testing.T) {
	keys := []string{
		"ts", "mode", "strategyId", "pairId", "twapId", "totalTriggers", "status",
		"reason", "error", "qty", "spread", "spreadPercent", "totalAmount",
		"orderCount", "threshold", "intervalMs", "isRollback", "leg1", "leg2",
	}

	tests := []struct {
		name string
		rec  ExecutionRecord
		null []string
	}{
		{
			name: "failed pair attempt",
			rec:  ExecutionRecord{Mode: ModePair, StrategyID: "p1", PairID: IDRef("p1"), Status: StatusFailed},
			null: []string{"twapId", "intervalMs", "threshold", "leg1", "leg2"},
		},
		{
			name: "twap slice",
			rec:  ExecutionRecord{Mode: ModeTwap, StrategyID: "t1", TwapID: IDRef("t1"), Status: StatusSuccess},
			null: []string{"pairId", "threshold", "intervalMs", "leg1", "leg2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.rec)
			require.NoError(t, err)
			var line map[string]any
			require.NoError(t, json.Unmarshal(b, &line))
			for _, k := range keys {
				assert.Contains(t, line, k)
			}
			for _, k := range tt.null {
				assert.Nil(t, line[k], k)
			}
			assert.Equal(t, string(tt.rec.Mode), line["mode"])
			assert.Equal(t, tt.rec.ID(), tt.rec.StrategyID)
		})
	}
}

func TestExecutionModeValues(t *testing.T) {
	assert.Equal(t, ExecutionMode("pair"), ModePair)
	assert.Equal(t, ExecutionMode("twap"), ModeTwap)
}
