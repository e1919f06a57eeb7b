package arbitrage

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Disable reasons recorded on MonitoredPair.DisabledReason.
const (
	DisabledMaxExecutions = "max_executions_reached"
	DisabledExecution     = "execution_failed"
)

// Registry holds the monitored pairs owned by one engine.
type Registry struct {
	pairs map[string]*domain.MonitoredPair
	mu    sync.RWMutex
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pairs: make(map[string]*domain.MonitoredPair)}
}

// Upsert inserts p or updates the mutable configuration of an existing pair.
// Legs cannot change once registered; counters and CreatedAt are preserved.
// A pair at its cap is always stored disabled.
func (r *Registry) Upsert(p domain.MonitoredPair, now time.Time) (domain.MonitoredPair, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, exists := r.pairs[p.ID]
	if exists {
		if cur.Leg1 != p.Leg1 || cur.Leg2 != p.Leg2 {
			return domain.MonitoredPair{}, false, fmt.Errorf("%w: legs of pair %s are immutable", domain.ErrInvalidPair, p.ID)
		}
		p.CreatedAt = cur.CreatedAt
		p.ExecutionsSoFar = cur.ExecutionsSoFar
		p.TotalTriggers = cur.TotalTriggers
		if !p.Enabled {
			p.DisabledReason = cur.DisabledReason
		}
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.Enabled {
		p.DisabledReason = ""
	}
	p.UpdatedAt = now
	if err := p.Validate(); err != nil {
		return domain.MonitoredPair{}, false, err
	}
	if p.Exhausted() {
		p.Enabled = false
		p.DisabledReason = DisabledMaxExecutions
	}
	stored := p
	r.pairs[p.ID] = &stored
	return stored, !exists, nil
}

// Remove deletes a pair.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pairs[id]; !ok {
		return fmt.Errorf("arbitrage: pair %s: %w", id, domain.ErrNotFound)
	}
	delete(r.pairs, id)
	return nil
}

// Get returns a copy of one pair.
func (r *Registry) Get(id string) (domain.MonitoredPair, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[id]
	if !ok {
		return domain.MonitoredPair{}, fmt.Errorf("arbitrage: pair %s: %w", id, domain.ErrNotFound)
	}
	return *p, nil
}

// List returns copies of all pairs ordered by creation time, then id.
func (r *Registry) List() []domain.MonitoredPair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MonitoredPair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// NextTrigger increments and returns the attempt ordinal of a pair.
func (r *Registry) NextTrigger(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pairs[id]
	if !ok {
		return 0
	}
	p.TotalTriggers++
	return p.TotalTriggers
}

// RecordOutcome applies the result of one execution: a success counts toward
// the cap and disables the pair when the cap is reached; a failure disables
// the pair immediately. It reports whether this call disabled the pair.
func (r *Registry) RecordOutcome(id string, success bool, now time.Time) (domain.MonitoredPair, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pairs[id]
	if !ok {
		return domain.MonitoredPair{}, false, fmt.Errorf("arbitrage: pair %s: %w", id, domain.ErrNotFound)
	}
	wasEnabled := p.Enabled
	if success {
		if p.ExecutionsSoFar < p.MaxExecutions {
			p.ExecutionsSoFar++
		}
		if p.Exhausted() {
			p.Enabled = false
			p.DisabledReason = DisabledMaxExecutions
		}
	} else {
		p.Enabled = false
		p.DisabledReason = DisabledExecution
	}
	p.UpdatedAt = now
	return *p, wasEnabled && !p.Enabled, nil
}

// Restore loads persisted pairs without touching their counters.
func (r *Registry) Restore(pairs []domain.MonitoredPair) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pairs {
		if p.Exhausted() {
			p.Enabled = false
		}
		stored := p
		r.pairs[p.ID] = &stored
	}
}
