package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpreadOf(t *testing.T) {
	tests := []struct {
		name         string
		side1, side2 Side
		px1, px2     float64
		wantSpread   float64
		wantPercent  float64
	}{
		{"sell leg1 buy leg2", SideSell, SideBuy, 100.2, 100, 0.2, 0.2 / 200.2 * 200},
		{"buy leg1 sell leg2", SideBuy, SideSell, 100, 100.2, 0.2, 0.2 / 200.2 * 200},
		{"negative spread", SideSell, SideBuy, 99, 100, -1, -1.0 / 199 * 200},
		{"same side falls back to leg2 base", SideSell, SideSell, 101, 100, 1, 1},
		{"zero prices", SideSell, SideBuy, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spread, pct := SpreadOf(tt.side1, tt.side2, tt.px1, tt.px2)
			assert.InDelta(t, tt.wantSpread, spread, 1e-9)
			assert.InDelta(t, tt.wantPercent, pct, 1e-9)
		})
	}
}

func TestSpreadSymmetry(t *testing.T) {
	s1, p1 := SpreadOf(SideSell, SideBuy, 101.5, 100.25)
	s2, p2 := SpreadOf(SideBuy, SideSell, 100.25, 101.5)
	assert.InDelta(t, s1, s2, 1e-12)
	assert.InDelta(t, p1, p2, 1e-12)
}

func TestTopOfBookValidity(t *testing.T) {
	ok := TopOfBook{BidPrice: 10, BidQty: 1, AskPrice: 10.5, AskQty: 2}
	assert.True(t, ok.Valid())

	crossed := ok
	crossed.AskPrice = 9
	assert.False(t, crossed.Valid())

	empty := ok
	empty.BidQty = 0
	assert.False(t, empty.Valid())

	assert.Equal(t, 10.0, ok.ExecPrice(SideSell))
	assert.Equal(t, 10.5, ok.ExecPrice(SideBuy))
}

func TestTopOfBookFresh(t *testing.T) {
	now := time.UnixMilli(1_700_000_010_000)
	q := TopOfBook{TimestampMs: 1_700_000_006_000}
	assert.True(t, q.Fresh(now, 5*time.Second))
	assert.False(t, q.Fresh(now, 4*time.Second))
	assert.False(t, TopOfBook{}.Fresh(now, time.Hour))
}
