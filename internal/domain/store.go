package domain

import "context"

// PairStore persists monitored pairs.
type PairStore interface {
	Upsert(ctx context.Context, pair MonitoredPair) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]MonitoredPair, error)
}

// PlanStore persists TWAP plans together with their progress.
type PlanStore interface {
	Upsert(ctx context.Context, plan TwapPlan, progress TwapProgress) error
	List(ctx context.Context) ([]TwapPlan, []TwapProgress, error)
}

// ExecutionStore mirrors audit records into a queryable database.
type ExecutionStore interface {
	Insert(ctx context.Context, rec ExecutionRecord) error
	UpdateLegPrice(ctx context.Context, orderID string, rec ExecutionRecord) error
}
