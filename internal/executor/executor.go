// Package executor places coupled legs across venues in sequence and
// compensates already-filled legs when a later leg fails.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// DefaultOrderTimeout bounds a single venue call when none is configured.
const DefaultOrderTimeout = 10 * time.Second

// LegOutcome is the result of placing one leg.
type LegOutcome struct {
	Leg    domain.Leg
	Result domain.OrderResult
	// Attempted is false for legs skipped after an earlier failure.
	Attempted bool
	// Err is the transport error, if the venue call itself failed.
	Err error
}

// Failed reports whether the leg was attempted and did not succeed.
func (o LegOutcome) Failed() bool {
	return o.Attempted && !o.Result.Success
}

// Rollback is one compensating order that reversed a filled leg.
type Rollback struct {
	// Original is the leg that was reversed, as it was placed.
	Original        domain.Leg
	OriginalOrderID string
	// Leg is the compensating leg (opposite side).
	Leg    domain.Leg
	Result domain.OrderResult
}

// SequenceResult is the outcome of ExecuteSequence.
type SequenceResult struct {
	Legs []LegOutcome
	// FailedIndex is the index of the leg that failed, or -1.
	FailedIndex int
	RolledBack  bool
	Rollbacks   []Rollback
}

// Success reports whether every leg filled.
func (r SequenceResult) Success() bool {
	return r.FailedIndex < 0
}

// RollbackFailed reports whether any compensating order failed, leaving an
// unhedged position.
func (r SequenceResult) RollbackFailed() bool {
	for _, rb := range r.Rollbacks {
		if !rb.Result.Success {
			return true
		}
	}
	return false
}

// FailureMessage returns the failing leg's message, or "".
func (r SequenceResult) FailureMessage() string {
	if r.FailedIndex < 0 {
		return ""
	}
	return r.Legs[r.FailedIndex].Result.Message
}

// FailureErr returns the failing leg's transport error, or nil.
func (r SequenceResult) FailureErr() error {
	if r.FailedIndex < 0 {
		return nil
	}
	return r.Legs[r.FailedIndex].Err
}

// OrderCount is the number of orders submitted, compensating orders included.
func (r SequenceResult) OrderCount() int {
	n := len(r.Rollbacks)
	for _, l := range r.Legs {
		if l.Attempted {
			n++
		}
	}
	return n
}

// TwoLegResult is the outcome of Execute.
type TwoLegResult struct {
	A, B       LegOutcome
	RolledBack bool
	Rollback   *Rollback
	Sequence   SequenceResult
}

// Success reports whether both legs filled.
func (r TwoLegResult) Success() bool {
	return r.Sequence.Success()
}

// Executor drives leg placement through resolved venue clients.
type Executor struct {
	venues       domain.VenueResolver
	orderTimeout time.Duration
	logger       *slog.Logger
}

// New creates an Executor. orderTimeout <= 0 selects DefaultOrderTimeout.
func New(venues domain.VenueResolver, orderTimeout time.Duration, logger *slog.Logger) *Executor {
	if orderTimeout <= 0 {
		orderTimeout = DefaultOrderTimeout
	}
	return &Executor{
		venues:       venues,
		orderTimeout: orderTimeout,
		logger:       logger.With(slog.String("component", "executor")),
	}
}

// Execute places a then b. If a fails nothing is undone. If b fails, a is
// reversed with the same quantity; the attempt is a failure either way.
func (e *Executor) Execute(ctx context.Context, a, b domain.Leg, qty decimal.Decimal) TwoLegResult {
	seq := e.ExecuteSequence(ctx, []domain.Leg{a, b}, qty)
	out := TwoLegResult{
		A:          seq.Legs[0],
		B:          seq.Legs[1],
		RolledBack: seq.RolledBack,
		Sequence:   seq,
	}
	if len(seq.Rollbacks) > 0 {
		rb := seq.Rollbacks[0]
		out.Rollback = &rb
	}
	return out
}

// ExecuteSequence places legs strictly in order, stopping at the first
// failure and reversing every earlier successful leg, newest first.
//
// Venue calls run on a context detached from ctx's cancellation so that a
// dispatched leg is never abandoned midway; each call is bounded by the
// order timeout instead.
func (e *Executor) ExecuteSequence(ctx context.Context, legs []domain.Leg, qty decimal.Decimal) SequenceResult {
	ctx = context.WithoutCancel(ctx)
	res := SequenceResult{
		Legs:        make([]LegOutcome, len(legs)),
		FailedIndex: -1,
	}
	for i, leg := range legs {
		res.Legs[i].Leg = leg
	}

	for i, leg := range legs {
		out := e.place(ctx, leg, qty)
		res.Legs[i] = out
		if !out.Result.Success {
			res.FailedIndex = i
			e.logger.WarnContext(ctx, "leg failed",
				slog.Int("index", i),
				slog.String("leg", leg.String()),
				slog.String("error", out.Result.Message),
			)
			break
		}
	}
	if res.FailedIndex <= 0 {
		return res
	}

	res.RolledBack = true
	for i := res.FailedIndex - 1; i >= 0; i-- {
		filled := res.Legs[i]
		res.Rollbacks = append(res.Rollbacks, e.Reverse(ctx, filled.Leg, qty, filled.Result.OrderID))
	}
	return res
}

// Reverse places the compensating order for a filled leg: same venue, symbol,
// category and quantity with the opposite side.
func (e *Executor) Reverse(ctx context.Context, leg domain.Leg, qty decimal.Decimal, originalOrderID string) Rollback {
	ctx = context.WithoutCancel(ctx)
	rev := leg.Reversed()
	out := e.place(ctx, rev, qty)
	rb := Rollback{
		Original:        leg,
		OriginalOrderID: originalOrderID,
		Leg:             rev,
		Result:          out.Result,
	}
	if out.Result.Success {
		e.logger.InfoContext(ctx, "leg reversed",
			slog.String("leg", leg.String()),
			slog.String("original_order_id", originalOrderID),
			slog.String("order_id", out.Result.OrderID),
		)
	} else {
		e.logger.ErrorContext(ctx, "rollback failed, position unhedged",
			slog.String("leg", leg.String()),
			slog.String("original_order_id", originalOrderID),
			slog.String("qty", qty.String()),
			slog.String("error", out.Result.Message),
			slog.Bool("unhedged", true),
		)
	}
	return rb
}

// place submits one market order and folds transport errors and timeouts
// into a failed OrderResult.
func (e *Executor) place(ctx context.Context, leg domain.Leg, qty decimal.Decimal) LegOutcome {
	out := LegOutcome{Leg: leg, Attempted: true}

	client, err := e.venues.Client(leg.Venue)
	if err != nil {
		out.Err = err
		out.Result = domain.OrderResult{Message: fmt.Sprintf("resolve venue: %v", err)}
		return out
	}

	callCtx, cancel := context.WithTimeout(ctx, e.orderTimeout)
	defer cancel()

	result, err := client.PlaceOrder(callCtx, domain.OrderRequest{
		Symbol:   leg.Symbol,
		Category: leg.Category,
		Side:     leg.Side,
		Qty:      qty,
	})
	if err != nil {
		out.Err = err
		out.Result = domain.OrderResult{Message: err.Error()}
		return out
	}
	if result.Success && result.OrderID == "" {
		result.Success = false
		result.Message = "venue returned success without order id"
	}
	if !result.Success && result.Message == "" {
		result.Message = "order rejected"
	}
	out.Result = result
	return out
}

// LegResults converts a sequence result into audit leg results. Skipped legs
// are included with Success=false and no order id.
func LegResults(seq SequenceResult, qty decimal.Decimal) []domain.LegResult {
	q := qty.InexactFloat64()
	out := make([]domain.LegResult, len(seq.Legs))
	for i, l := range seq.Legs {
		lr := domain.NewLegResult(l.Leg, q)
		lr.Success = l.Result.Success
		lr.OrderID = l.Result.OrderID
		lr.Price = l.Result.Price
		switch {
		case !l.Attempted:
			lr.Error = "not attempted"
		case !l.Result.Success:
			lr.Error = l.Result.Message
		}
		out[i] = lr
	}
	return out
}

// RollbackLegResult converts a compensating order into an audit leg result.
func RollbackLegResult(rb Rollback, qty decimal.Decimal) domain.LegResult {
	lr := domain.NewLegResult(rb.Leg, qty.InexactFloat64())
	lr.Success = rb.Result.Success
	lr.OrderID = rb.Result.OrderID
	lr.Price = rb.Result.Price
	lr.OriginalOrderID = rb.OriginalOrderID
	if !rb.Result.Success {
		lr.Error = rb.Result.Message
	}
	return lr
}
