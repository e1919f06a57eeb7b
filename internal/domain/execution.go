package domain

import (
	"time"
)

// ExecutionMode names the strategy style that produced a record.
type ExecutionMode string

const (
	ModePair ExecutionMode = "pair"
	ModeTwap ExecutionMode = "twap"
)

// ExecutionStatus is the outcome of one attempt.
type ExecutionStatus string

const (
	StatusSuccess    ExecutionStatus = "success"
	StatusFailed     ExecutionStatus = "failed"
	StatusCancelled  ExecutionStatus = "cancelled"
	StatusRolledBack ExecutionStatus = "rolled_back"
)

// Reasons written to ExecutionRecord.Reason.
const (
	ReasonTriggered       = "spread_threshold_reached"
	ReasonSlice           = "scheduled_slice"
	ReasonLegFailed       = "leg_failed"
	ReasonRollback        = "rollback"
	ReasonRollbackFailed  = "rollback_failed"
	ReasonEmergency       = "emergency_rollback"
	ReasonPanic           = "execution_panic"
	ReasonQuoteBackfilled = "price_backfilled"
)

// LegResult is the per-leg outcome stored in an ExecutionRecord.
type LegResult struct {
	Venue           string         `json:"venue"`
	Symbol          string         `json:"symbol"`
	Category        MarketCategory `json:"marketCategory"`
	Side            Side           `json:"side"`
	Qty             float64        `json:"qty"`
	Success         bool           `json:"success"`
	OrderID         string         `json:"orderId,omitempty"`
	Price           float64        `json:"price"`
	PriceUpdated    bool           `json:"priceUpdated"`
	OriginalOrderID string         `json:"originalOrderId,omitempty"`
	Error           string         `json:"error,omitempty"`
}

// NewLegResult seeds a LegResult from the leg definition.
func NewLegResult(leg Leg, qty float64) LegResult {
	return LegResult{
		Venue:    leg.Venue,
		Symbol:   leg.Symbol,
		Category: leg.Category,
		Side:     leg.Side,
		Qty:      qty,
	}
}

// ExecutionRecord is one line of the audit log: a single execution attempt or
// a single compensating order. Every key except unhedged and legs is always
// written; fields that do not apply to the record's mode serialize as null.
type ExecutionRecord struct {
	Ts            time.Time       `json:"ts"`
	Mode          ExecutionMode   `json:"mode"`
	StrategyID    string          `json:"strategyId"`
	PairID        *string         `json:"pairId"`
	TwapID        *string         `json:"twapId"`
	TotalTriggers int             `json:"totalTriggers"`
	Status        ExecutionStatus `json:"status"`
	Reason        string          `json:"reason"`
	Error         string          `json:"error"`
	Qty           float64         `json:"qty"`
	Spread        float64         `json:"spread"`
	SpreadPercent float64         `json:"spreadPercent"`
	TotalAmount   float64         `json:"totalAmount"`
	OrderCount    int             `json:"orderCount"`
	Threshold     *float64        `json:"threshold"`
	IntervalMs    *int64          `json:"intervalMs"`
	IsRollback    bool            `json:"isRollback"`
	Unhedged      bool            `json:"unhedged,omitempty"`
	Leg1          *LegResult      `json:"leg1"`
	Leg2          *LegResult      `json:"leg2"`
	Legs          []LegResult     `json:"legs,omitempty"`
}

// IDRef returns id as a pointer for ExecutionRecord.PairID and TwapID.
func IDRef(id string) *string {
	return &id
}

// ID returns the pair or plan id the record belongs to.
func (r ExecutionRecord) ID() string {
	switch {
	case r.PairID != nil:
		return *r.PairID
	case r.TwapID != nil:
		return *r.TwapID
	default:
		return r.StrategyID
	}
}

// SetLegs stores legs into Leg1/Leg2 and, for more than two legs, the full
// list in Legs.
func (r *ExecutionRecord) SetLegs(legs []LegResult) {
	r.Leg1, r.Leg2, r.Legs = nil, nil, nil
	if len(legs) > 0 {
		l := legs[0]
		r.Leg1 = &l
	}
	if len(legs) > 1 {
		l := legs[1]
		r.Leg2 = &l
	}
	if len(legs) > 2 {
		r.Legs = append([]LegResult(nil), legs...)
	}
}

// AllLegs returns every leg of the record in placement order.
func (r ExecutionRecord) AllLegs() []LegResult {
	if len(r.Legs) > 0 {
		return r.Legs
	}
	var out []LegResult
	if r.Leg1 != nil {
		out = append(out, *r.Leg1)
	}
	if r.Leg2 != nil {
		out = append(out, *r.Leg2)
	}
	return out
}

// HasOrder reports whether any leg of the record carries orderID.
func (r ExecutionRecord) HasOrder(orderID string) bool {
	for _, l := range r.AllLegs() {
		if l.OrderID == orderID {
			return true
		}
	}
	return false
}

// ApplyFillPrice sets the price of the leg with orderID, marks it updated and
// recomputes the derived spread and notional. It reports whether a leg matched.
func (r *ExecutionRecord) ApplyFillPrice(orderID string, price float64) bool {
	matched := false
	update := func(l *LegResult) {
		if l != nil && l.OrderID == orderID {
			l.Price = price
			l.PriceUpdated = true
			matched = true
		}
	}
	update(r.Leg1)
	update(r.Leg2)
	for i := range r.Legs {
		update(&r.Legs[i])
	}
	if matched {
		r.Recompute()
	}
	return matched
}

// RecomputeAmount derives TotalAmount as the notional of every filled leg.
func (r *ExecutionRecord) RecomputeAmount() {
	total := 0.0
	for _, l := range r.AllLegs() {
		if l.Success {
			total += l.Qty * l.Price
		}
	}
	r.TotalAmount = total
}

// Recompute derives TotalAmount and, from the first two legs' fill prices,
// Spread and SpreadPercent. The spread is left untouched until both prices
// are known.
func (r *ExecutionRecord) Recompute() {
	r.RecomputeAmount()
	legs := r.AllLegs()
	if r.IsRollback || len(legs) < 2 {
		return
	}
	a, b := legs[0], legs[1]
	if a.Price > 0 && b.Price > 0 {
		r.Spread, r.SpreadPercent = SpreadOf(a.Side, b.Side, a.Price, b.Price)
	}
}
