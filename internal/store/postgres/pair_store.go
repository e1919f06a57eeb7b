package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// PairStore implements domain.PairStore. Legs are stored as JSONB.
type PairStore struct {
	pool *pgxpool.Pool
}

// NewPairStore creates a PairStore backed by pool.
func NewPairStore(pool *pgxpool.Pool) *PairStore {
	return &PairStore{pool: pool}
}

var _ domain.PairStore = (*PairStore)(nil)

// Upsert inserts or replaces a pair, counters included.
func (s *PairStore) Upsert(ctx context.Context, p domain.MonitoredPair) error {
	leg1, err := json.Marshal(p.Leg1)
	if err != nil {
		return fmt.Errorf("postgres: marshal leg1 of pair %s: %w", p.ID, err)
	}
	leg2, err := json.Marshal(p.Leg2)
	if err != nil {
		return fmt.Errorf("postgres: marshal leg2 of pair %s: %w", p.ID, err)
	}

	const query = `
		INSERT INTO monitored_pairs (
			id, leg1, leg2, threshold_percent, qty_per_trigger, max_executions,
			enabled, executions_so_far, total_triggers, disabled_reason,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			leg1              = EXCLUDED.leg1,
			leg2              = EXCLUDED.leg2,
			threshold_percent = EXCLUDED.threshold_percent,
			qty_per_trigger   = EXCLUDED.qty_per_trigger,
			max_executions    = EXCLUDED.max_executions,
			enabled           = EXCLUDED.enabled,
			executions_so_far = EXCLUDED.executions_so_far,
			total_triggers    = EXCLUDED.total_triggers,
			disabled_reason   = EXCLUDED.disabled_reason,
			updated_at        = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		p.ID, leg1, leg2, p.ThresholdPercent, p.QtyPerTrigger.String(), p.MaxExecutions,
		p.Enabled, p.ExecutionsSoFar, p.TotalTriggers, p.DisabledReason,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pair %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes a pair. domain.ErrNotFound is returned for unknown ids.
func (s *PairStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM monitored_pairs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete pair %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns every stored pair ordered by creation time.
func (s *PairStore) List(ctx context.Context) ([]domain.MonitoredPair, error) {
	const query = `
		SELECT id, leg1, leg2, threshold_percent, qty_per_trigger::text, max_executions,
		       enabled, executions_so_far, total_triggers, disabled_reason,
		       created_at, updated_at
		FROM monitored_pairs
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.MonitoredPair
	for rows.Next() {
		var (
			p          domain.MonitoredPair
			leg1, leg2 []byte
			qty        string
		)
		if err := rows.Scan(
			&p.ID, &leg1, &leg2, &p.ThresholdPercent, &qty, &p.MaxExecutions,
			&p.Enabled, &p.ExecutionsSoFar, &p.TotalTriggers, &p.DisabledReason,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan pair: %w", err)
		}
		if err := json.Unmarshal(leg1, &p.Leg1); err != nil {
			return nil, fmt.Errorf("postgres: decode leg1 of pair %s: %w", p.ID, err)
		}
		if err := json.Unmarshal(leg2, &p.Leg2); err != nil {
			return nil, fmt.Errorf("postgres: decode leg2 of pair %s: %w", p.ID, err)
		}
		if p.QtyPerTrigger, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("postgres: decode qty of pair %s: %w", p.ID, err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pairs rows: %w", err)
	}
	return pairs, nil
}
