package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TwapState is the lifecycle state of a TWAP plan.
type TwapState string

const (
	TwapPending   TwapState = "pending"
	TwapRunning   TwapState = "running"
	TwapPaused    TwapState = "paused"
	TwapCompleted TwapState = "completed"
	TwapCancelled TwapState = "cancelled"
	TwapFailed    TwapState = "failed"
)

// Terminal reports whether no further transition is possible.
func (s TwapState) Terminal() bool {
	return s == TwapCompleted || s == TwapCancelled || s == TwapFailed
}

// twapTransitions lists every permitted state change.
var twapTransitions = map[TwapState][]TwapState{
	TwapPending: {TwapRunning, TwapCancelled},
	TwapRunning: {TwapPaused, TwapCompleted, TwapCancelled, TwapFailed},
	TwapPaused:  {TwapRunning, TwapCancelled, TwapFailed},
}

// CanTransition reports whether from -> to is a permitted state change.
func CanTransition(from, to TwapState) bool {
	for _, s := range twapTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TwapPlan is a time-sliced execution schedule over one or more legs.
type TwapPlan struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	TotalQty   decimal.Decimal `json:"totalQty"`
	SliceQty   decimal.Decimal `json:"sliceQty"`
	IntervalMs int64           `json:"intervalMs"`
	Legs       []Leg           `json:"legs"`
	State      TwapState       `json:"state"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Validate checks quantities, interval and legs.
func (p TwapPlan) Validate() error {
	var errs []string
	if strings.TrimSpace(p.ID) == "" {
		errs = append(errs, "id is empty")
	}
	if !p.SliceQty.IsPositive() {
		errs = append(errs, "sliceQty must be > 0")
	}
	if p.SliceQty.GreaterThan(p.TotalQty) {
		errs = append(errs, "sliceQty must not exceed totalQty")
	}
	if p.IntervalMs <= 0 {
		errs = append(errs, "intervalMs must be > 0")
	}
	if len(p.Legs) == 0 {
		errs = append(errs, "at least one leg is required")
	}
	for i, leg := range p.Legs {
		if err := leg.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("legs[%d]: %s", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPlan, strings.Join(errs, "; "))
	}
	return nil
}

// SlicesTotal is floor(TotalQty / SliceQty).
func (p TwapPlan) SlicesTotal() int {
	if !p.SliceQty.IsPositive() {
		return 0
	}
	return int(p.TotalQty.Div(p.SliceQty).Floor().IntPart())
}

// Interval returns IntervalMs as a duration.
func (p TwapPlan) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

// TwapProgress is the externally visible execution state of a plan.
// ExecutedQty + RemainingQty always equals the plan's TotalQty.
type TwapProgress struct {
	PlanID          string          `json:"planId"`
	State           TwapState       `json:"state"`
	ExecutedQty     decimal.Decimal `json:"executedQty"`
	RemainingQty    decimal.Decimal `json:"remainingQty"`
	SlicesDone      int             `json:"slicesDone"`
	SlicesTotal     int             `json:"slicesTotal"`
	LastExecutionTs *time.Time      `json:"lastExecutionTs,omitempty"`
	NextExecutionTs *time.Time      `json:"nextExecutionTs,omitempty"`
	FailureReason   string          `json:"failureReason,omitempty"`
	RolledBackLegs  int             `json:"rolledBackLegs"`
}

// NewTwapProgress returns the initial progress of plan.
func NewTwapProgress(plan TwapPlan) TwapProgress {
	return TwapProgress{
		PlanID:       plan.ID,
		State:        plan.State,
		ExecutedQty:  decimal.Zero,
		RemainingQty: plan.TotalQty,
		SlicesTotal:  plan.SlicesTotal(),
	}
}

// RecordSlice accounts one successful slice of sliceQty.
func (p *TwapProgress) RecordSlice(total, sliceQty decimal.Decimal) {
	p.SlicesDone++
	p.ExecutedQty = p.ExecutedQty.Add(sliceQty)
	p.RemainingQty = total.Sub(p.ExecutedQty)
}

// Done reports whether every scheduled slice has executed.
func (p TwapProgress) Done() bool {
	return p.SlicesDone >= p.SlicesTotal
}
