package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// PlanStore implements domain.PlanStore. Legs and progress are JSONB.
type PlanStore struct {
	pool *pgxpool.Pool
}

// NewPlanStore creates a PlanStore backed by pool.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{pool: pool}
}

var _ domain.PlanStore = (*PlanStore)(nil)

// Upsert inserts or replaces a plan together with its progress.
func (s *PlanStore) Upsert(ctx context.Context, plan domain.TwapPlan, progress domain.TwapProgress) error {
	legs, err := json.Marshal(plan.Legs)
	if err != nil {
		return fmt.Errorf("postgres: marshal legs of plan %s: %w", plan.ID, err)
	}
	prog, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("postgres: marshal progress of plan %s: %w", plan.ID, err)
	}

	const query = `
		INSERT INTO twap_plans (
			id, name, total_qty, slice_qty, interval_ms, legs, state, progress,
			created_at, updated_at
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name        = EXCLUDED.name,
			total_qty   = EXCLUDED.total_qty,
			slice_qty   = EXCLUDED.slice_qty,
			interval_ms = EXCLUDED.interval_ms,
			legs        = EXCLUDED.legs,
			state       = EXCLUDED.state,
			progress    = EXCLUDED.progress,
			updated_at  = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, query,
		plan.ID, plan.Name, plan.TotalQty.String(), plan.SliceQty.String(), plan.IntervalMs,
		legs, string(plan.State), prog, plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert plan %s: %w", plan.ID, err)
	}
	return nil
}

// List returns every stored plan with its progress, index-aligned.
func (s *PlanStore) List(ctx context.Context) ([]domain.TwapPlan, []domain.TwapProgress, error) {
	const query = `
		SELECT id, name, total_qty::text, slice_qty::text, interval_ms, legs, state, progress,
		       created_at, updated_at
		FROM twap_plans
		ORDER BY created_at, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: list plans: %w", err)
	}
	defer rows.Close()

	var (
		plans    []domain.TwapPlan
		progress []domain.TwapProgress
	)
	for rows.Next() {
		var (
			p               domain.TwapPlan
			total, slice    string
			state           string
			legs, progBytes []byte
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &total, &slice, &p.IntervalMs, &legs, &state, &progBytes,
			&p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("postgres: scan plan: %w", err)
		}
		p.State = domain.TwapState(state)
		if p.TotalQty, err = decimal.NewFromString(total); err != nil {
			return nil, nil, fmt.Errorf("postgres: decode total of plan %s: %w", p.ID, err)
		}
		if p.SliceQty, err = decimal.NewFromString(slice); err != nil {
			return nil, nil, fmt.Errorf("postgres: decode slice of plan %s: %w", p.ID, err)
		}
		if err := json.Unmarshal(legs, &p.Legs); err != nil {
			return nil, nil, fmt.Errorf("postgres: decode legs of plan %s: %w", p.ID, err)
		}
		var prog domain.TwapProgress
		if err := json.Unmarshal(progBytes, &prog); err != nil {
			return nil, nil, fmt.Errorf("postgres: decode progress of plan %s: %w", p.ID, err)
		}
		plans = append(plans, p)
		progress = append(progress, prog)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("postgres: list plans rows: %w", err)
	}
	return plans, progress, nil
}
