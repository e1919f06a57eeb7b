package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore. The full record is kept
// as JSONB next to the columns used for filtering.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates an ExecutionStore backed by pool.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

var _ domain.ExecutionStore = (*ExecutionStore)(nil)

// Insert appends a record.
func (s *ExecutionStore) Insert(ctx context.Context, rec domain.ExecutionRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres: marshal execution record: %w", err)
	}

	const query = `
		INSERT INTO execution_records (
			ts, mode, strategy_id, pair_id, twap_id, status, reason,
			is_rollback, unhedged, total_amount, spread_percent, order_ids, record
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = s.pool.Exec(ctx, query,
		rec.Ts, string(rec.Mode), rec.StrategyID, rec.PairID, rec.TwapID,
		string(rec.Status), rec.Reason, rec.IsRollback, rec.Unhedged,
		rec.TotalAmount, rec.SpreadPercent, orderIDs(rec), body,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution record %s: %w", rec.StrategyID, err)
	}
	return nil
}

// UpdateLegPrice replaces the newest row carrying orderID with rec.
func (s *ExecutionStore) UpdateLegPrice(ctx context.Context, orderID string, rec domain.ExecutionRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("postgres: marshal execution record: %w", err)
	}

	const query = `
		UPDATE execution_records SET
			record         = $2,
			total_amount   = $3,
			spread_percent = $4
		WHERE id = (
			SELECT id FROM execution_records
			WHERE $1 = ANY(order_ids)
			ORDER BY ts DESC, id DESC
			LIMIT 1
		)`

	tag, err := s.pool.Exec(ctx, query, orderID, body, rec.TotalAmount, rec.SpreadPercent)
	if err != nil {
		return fmt.Errorf("postgres: update leg price %s: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func orderIDs(rec domain.ExecutionRecord) []string {
	ids := []string{}
	for _, l := range rec.AllLegs() {
		if l.OrderID != "" {
			ids = append(ids, l.OrderID)
		}
	}
	return ids
}
