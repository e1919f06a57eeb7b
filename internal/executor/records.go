package executor

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// AttemptRecord fills the outcome fields of base from seq: status, reason,
// error, legs, order count and notional. base carries the strategy identity.
func AttemptRecord(base domain.ExecutionRecord, seq SequenceResult, qty decimal.Decimal, successReason string) domain.ExecutionRecord {
	rec := base
	rec.Qty = qty.InexactFloat64()
	rec.SetLegs(LegResults(seq, qty))
	rec.RecomputeAmount()
	rec.OrderCount = 0
	for _, l := range seq.Legs {
		if l.Attempted {
			rec.OrderCount++
		}
	}
	if seq.Success() {
		rec.Status = domain.StatusSuccess
		rec.Reason = successReason
		rec.Error = ""
	} else {
		rec.Status = domain.StatusFailed
		rec.Reason = domain.ReasonLegFailed
		rec.Error = seq.FailureMessage()
		rec.Unhedged = seq.RollbackFailed()
	}
	return rec
}

// RollbackRecord builds the audit record of one compensating order.
func RollbackRecord(base domain.ExecutionRecord, rb Rollback, qty decimal.Decimal, reason string) domain.ExecutionRecord {
	rec := base
	rec.IsRollback = true
	rec.Qty = qty.InexactFloat64()
	rec.OrderCount = 1
	rec.Spread, rec.SpreadPercent = 0, 0
	rec.SetLegs([]domain.LegResult{RollbackLegResult(rb, qty)})
	rec.RecomputeAmount()
	if rb.Result.Success {
		rec.Status = domain.StatusRolledBack
		rec.Reason = reason
		rec.Error = ""
		rec.Unhedged = false
	} else {
		rec.Status = domain.StatusFailed
		rec.Reason = domain.ReasonRollbackFailed
		rec.Error = rb.Result.Message
		rec.Unhedged = true
	}
	return rec
}

// RollbackRecords builds one record per compensating order of seq.
func RollbackRecords(base domain.ExecutionRecord, seq SequenceResult, qty decimal.Decimal) []domain.ExecutionRecord {
	out := make([]domain.ExecutionRecord, 0, len(seq.Rollbacks))
	for _, rb := range seq.Rollbacks {
		out = append(out, RollbackRecord(base, rb, qty, domain.ReasonRollback))
	}
	return out
}
