// Package twap executes time-sliced plans: each plan owns one scheduler
// goroutine that places every leg of a slice in order, rolls back the slice
// on failure, and waits a fixed interval between slices.
package twap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/audit"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/executor"
)

// SequenceExecutor places ordered legs with rollback and reverses single legs.
type SequenceExecutor interface {
	ExecuteSequence(ctx context.Context, legs []domain.Leg, qty decimal.Decimal) executor.SequenceResult
	Reverse(ctx context.Context, leg domain.Leg, qty decimal.Decimal, originalOrderID string) executor.Rollback
}

// AuditLog appends and reads execution records.
type AuditLog interface {
	Append(ctx context.Context, rec domain.ExecutionRecord) error
	List(ctx context.Context, f audit.Filter) ([]domain.ExecutionRecord, error)
}

// FillScheduler re-queries missing fill prices.
type FillScheduler interface {
	Schedule(ctx context.Context, fills ...executor.PendingFill)
}

// Config holds engine tunables.
type Config struct {
	// MinInterval rejects plans with a shorter slice interval. Zero disables
	// the check.
	MinInterval time.Duration
}

// Deps bundles the engine's collaborators. Backfill, Events and Store are
// optional.
type Deps struct {
	Venues   domain.VenueResolver
	Executor SequenceExecutor
	Audit    AuditLog
	Backfill FillScheduler
	Events   domain.EventPublisher
	Store    domain.PlanStore
	Logger   *slog.Logger
}

// PlanStatus is a plan together with its progress.
type PlanStatus struct {
	Plan     domain.TwapPlan     `json:"plan"`
	Progress domain.TwapProgress `json:"progress"`
}

// Terminal reports whether the plan reached a final state.
func (s PlanStatus) Terminal() bool { return s.Progress.State.Terminal() }

func (s PlanStatus) String() string {
	p := s.Progress
	out := fmt.Sprintf("plan %s %s slices=%d/%d executed=%s remaining=%s",
		s.Plan.ID, p.State, p.SlicesDone, p.SlicesTotal, p.ExecutedQty, p.RemainingQty)
	if p.FailureReason != "" {
		out += " reason=" + p.FailureReason
	}
	return out
}

// filledLeg is a successful order that has not been reversed.
type filledLeg struct {
	leg     domain.Leg
	orderID string
	qty     decimal.Decimal
}

type planEntry struct {
	plan     domain.TwapPlan
	progress domain.TwapProgress
	filled   []filledLeg

	// cancel stops the current scheduler; done is closed when it exits.
	cancel context.CancelFunc
	done   chan struct{}

	// rollingBack is set while EmergencyRollback owns the plan. No scheduler
	// may start and no operator transition applies until it clears.
	rollingBack bool
}

// Engine owns the plan registry and the per-plan schedulers.
type Engine struct {
	cfg   Config
	deps  Deps
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
	log   *slog.Logger

	mu      sync.Mutex
	plans   map[string]*planEntry
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewEngine creates an Engine.
func NewEngine(cfg Config, deps Deps) *Engine {
	return &Engine{
		cfg:     cfg,
		deps:    deps,
		now:     time.Now,
		after:   time.After,
		log:     deps.Logger.With(slog.String("component", "twap_engine")),
		plans:   make(map[string]*planEntry),
		baseCtx: context.Background(),
	}
}

// Bind sets the parent context of every scheduler started afterwards.
func (e *Engine) Bind(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Registration and queries
// ---------------------------------------------------------------------------

// CreatePlan registers a plan in the pending state.
func (e *Engine) CreatePlan(ctx context.Context, p domain.TwapPlan) (PlanStatus, error) {
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	now := e.now().UTC()
	p.State = domain.TwapPending
	p.CreatedAt, p.UpdatedAt = now, now
	if err := p.Validate(); err != nil {
		return PlanStatus{}, err
	}
	if e.cfg.MinInterval > 0 && p.Interval() < e.cfg.MinInterval {
		return PlanStatus{}, fmt.Errorf("%w: intervalMs %d below minimum %s", domain.ErrInvalidPlan, p.IntervalMs, e.cfg.MinInterval)
	}
	for i, leg := range p.Legs {
		if _, err := e.deps.Venues.Client(leg.Venue); err != nil {
			return PlanStatus{}, fmt.Errorf("%w: legs[%d] venue %q: %v", domain.ErrInvalidPlan, i, leg.Venue, err)
		}
	}
	p.Legs = append([]domain.Leg(nil), p.Legs...)

	e.mu.Lock()
	if _, exists := e.plans[p.ID]; exists {
		e.mu.Unlock()
		return PlanStatus{}, fmt.Errorf("twap: plan %s: %w", p.ID, domain.ErrAlreadyExists)
	}
	ent := &planEntry{plan: p, progress: domain.NewTwapProgress(p)}
	e.plans[p.ID] = ent
	st := ent.status()
	e.mu.Unlock()

	e.log.InfoContext(ctx, "twap plan created",
		slog.String("plan_id", p.ID),
		slog.String("name", p.Name),
		slog.String("total_qty", p.TotalQty.String()),
		slog.String("slice_qty", p.SliceQty.String()),
		slog.Int("slices", st.Progress.SlicesTotal),
		slog.Int64("interval_ms", p.IntervalMs),
	)
	e.commit(ctx, st, domain.EventTwapState)
	return st, nil
}

// GetPlan returns one plan with its progress.
func (e *Engine) GetPlan(id string) (PlanStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.plans[id]
	if !ok {
		return PlanStatus{}, fmt.Errorf("twap: plan %s: %w", id, domain.ErrNotFound)
	}
	return ent.status(), nil
}

// Progress returns the progress of one plan.
func (e *Engine) Progress(id string) (domain.TwapProgress, error) {
	st, err := e.GetPlan(id)
	if err != nil {
		return domain.TwapProgress{}, err
	}
	return st.Progress, nil
}

// ListPlans returns every plan ordered by creation time.
func (e *Engine) ListPlans() []PlanStatus {
	e.mu.Lock()
	out := make([]PlanStatus, 0, len(e.plans))
	for _, ent := range e.plans {
		out = append(out, ent.status())
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Plan, out[j].Plan
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// Executions returns the plan's audit records, newest first.
func (e *Engine) Executions(ctx context.Context, id string, limit int) ([]domain.ExecutionRecord, error) {
	if _, err := e.GetPlan(id); err != nil {
		return nil, err
	}
	return e.deps.Audit.List(ctx, audit.Filter{Mode: domain.ModeTwap, StrategyID: id, Limit: limit})
}

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

// Start moves a pending plan to running; the first slice fires immediately.
func (e *Engine) Start(ctx context.Context, id string) (PlanStatus, error) {
	return e.launch(ctx, id, domain.TwapPending)
}

// Resume moves a paused plan back to running. The new scheduler waits for the
// previous one to exit, then continues from the next unexecuted slice at its
// scheduled time.
func (e *Engine) Resume(ctx context.Context, id string) (PlanStatus, error) {
	return e.launch(ctx, id, domain.TwapPaused)
}

func (e *Engine) launch(ctx context.Context, id string, from domain.TwapState) (PlanStatus, error) {
	e.mu.Lock()
	ent, ok := e.plans[id]
	if !ok {
		e.mu.Unlock()
		return PlanStatus{}, fmt.Errorf("twap: plan %s: %w", id, domain.ErrNotFound)
	}
	if ent.plan.State != from {
		e.mu.Unlock()
		return PlanStatus{}, fmt.Errorf("twap: plan %s is %s: %w", id, ent.plan.State, domain.ErrInvalidTransition)
	}
	if ent.rollingBack {
		e.mu.Unlock()
		return PlanStatus{}, fmt.Errorf("twap: plan %s is rolling back: %w", id, domain.ErrInvalidTransition)
	}
	if err := e.transitionLocked(ent, domain.TwapRunning); err != nil {
		e.mu.Unlock()
		return PlanStatus{}, err
	}
	prev := ent.done
	runCtx, cancel := context.WithCancel(e.baseCtx)
	done := make(chan struct{})
	ent.cancel, ent.done = cancel, done
	st := ent.status()
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		defer close(done)
		e.schedule(runCtx, id, prev)
	}()

	e.log.InfoContext(ctx, "twap plan running", slog.String("plan_id", id), slog.String("from", string(from)))
	e.commit(ctx, st, domain.EventTwapState)
	return st, nil
}

// Pause stops scheduling further slices. A slice already in flight completes
// and is accounted.
func (e *Engine) Pause(ctx context.Context, id string) (PlanStatus, error) {
	st, err := e.stop(id, domain.TwapPaused, "")
	if err != nil {
		return PlanStatus{}, err
	}
	e.log.InfoContext(ctx, "twap plan paused", slog.String("plan_id", id))
	e.commit(ctx, st, domain.EventTwapState)
	return st, nil
}

// Cancel terminates the plan without reversing completed slices.
func (e *Engine) Cancel(ctx context.Context, id string) (PlanStatus, error) {
	st, err := e.stop(id, domain.TwapCancelled, "cancelled by operator")
	if err != nil {
		return PlanStatus{}, err
	}
	e.log.InfoContext(ctx, "twap plan cancelled", slog.String("plan_id", id))
	e.commit(ctx, st, domain.EventTwapState)
	return st, nil
}

func (e *Engine) stop(id string, to domain.TwapState, reason string) (PlanStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.plans[id]
	if !ok {
		return PlanStatus{}, fmt.Errorf("twap: plan %s: %w", id, domain.ErrNotFound)
	}
	if ent.rollingBack {
		return PlanStatus{}, fmt.Errorf("twap: plan %s is rolling back: %w", id, domain.ErrInvalidTransition)
	}
	if err := e.transitionLocked(ent, to); err != nil {
		return PlanStatus{}, err
	}
	if reason != "" {
		ent.progress.FailureReason = reason
	}
	if to.Terminal() {
		ent.progress.NextExecutionTs = nil
	}
	if ent.cancel != nil {
		ent.cancel()
	}
	return ent.status(), nil
}

// EmergencyRollback stops the plan and reverses every successful leg of its
// history that has not been reversed yet, newest first. The plan ends
// cancelled. Reversal failures are recorded as unhedged and do not stop the
// remaining reversals.
func (e *Engine) EmergencyRollback(ctx context.Context, id string) (PlanStatus, error) {
	e.mu.Lock()
	ent, ok := e.plans[id]
	if !ok {
		e.mu.Unlock()
		return PlanStatus{}, fmt.Errorf("twap: plan %s: %w", id, domain.ErrNotFound)
	}
	if ent.plan.State.Terminal() || ent.rollingBack {
		e.mu.Unlock()
		return PlanStatus{}, fmt.Errorf("twap: emergency rollback of %s plan %s: %w", ent.plan.State, id, domain.ErrInvalidTransition)
	}
	ent.rollingBack = true
	if ent.cancel != nil {
		ent.cancel()
	}
	done := ent.done
	e.mu.Unlock()

	// Let an in-flight slice finish so its legs are included.
	if done != nil {
		<-done
	}

	e.mu.Lock()
	filled := ent.filled
	ent.filled = nil
	plan := ent.plan
	trigger := ent.progress.SlicesDone
	e.mu.Unlock()

	log := e.log.With(slog.String("plan_id", id))
	log.WarnContext(ctx, "twap emergency rollback", slog.Int("legs", len(filled)))

	exCtx := context.WithoutCancel(ctx)
	reversed, unhedged := 0, 0
	var pending []executor.PendingFill
	for i := len(filled) - 1; i >= 0; i-- {
		f := filled[i]
		rb := e.deps.Executor.Reverse(exCtx, f.leg, f.qty, f.orderID)
		rec := executor.RollbackRecord(e.baseRecord(plan, trigger), rb, f.qty, domain.ReasonEmergency)
		e.append(exCtx, rec)
		if rb.Result.Success {
			reversed++
			if rb.Result.Price <= 0 {
				pending = append(pending, executor.PendingFill{
					Venue: rb.Leg.Venue, Symbol: rb.Leg.Symbol, Category: rb.Leg.Category, OrderID: rb.Result.OrderID,
				})
			}
		} else {
			unhedged++
			e.publish(exCtx, domain.EventUnhedgedPosition, rec)
		}
	}
	if e.deps.Backfill != nil && len(pending) > 0 {
		e.deps.Backfill.Schedule(exCtx, pending...)
	}

	e.mu.Lock()
	ent.progress.RolledBackLegs += reversed
	ent.progress.NextExecutionTs = nil
	ent.progress.FailureReason = "emergency rollback"
	if err := e.transitionLocked(ent, domain.TwapCancelled); err != nil {
		log.WarnContext(ctx, "emergency rollback transition skipped", slog.String("error", err.Error()))
	}
	if ent.cancel != nil {
		ent.cancel()
	}
	ent.rollingBack = false
	st := ent.status()
	e.mu.Unlock()

	if unhedged > 0 {
		log.ErrorContext(ctx, "emergency rollback left unhedged legs",
			slog.Int("reversed", reversed),
			slog.Int("unhedged", unhedged),
			slog.Bool("unhedged", true),
		)
	} else {
		log.InfoContext(ctx, "emergency rollback complete", slog.Int("reversed", reversed))
	}
	e.commit(ctx, st, domain.EventTwapState)
	return st, nil
}

func (e *Engine) transitionLocked(ent *planEntry, to domain.TwapState) error {
	from := ent.plan.State
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("twap: plan %s %s -> %s: %w", ent.plan.ID, from, to, domain.ErrInvalidTransition)
	}
	ent.plan.State = to
	ent.progress.State = to
	ent.plan.UpdatedAt = e.now().UTC()
	return nil
}

// ---------------------------------------------------------------------------
// Scheduler
// ---------------------------------------------------------------------------

func (e *Engine) schedule(ctx context.Context, id string, prev <-chan struct{}) {
	// The previous scheduler was cancelled; it exits once its in-flight
	// slice is accounted.
	if prev != nil {
		<-prev
	}
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	ent, ok := e.plans[id]
	var wait time.Duration
	if ok && ent.progress.NextExecutionTs != nil {
		wait = ent.progress.NextExecutionTs.Sub(e.now())
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	for {
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-e.after(wait):
			}
		}
		if ctx.Err() != nil {
			return
		}
		next, more := e.runSlice(ctx, id)
		if !more {
			return
		}
		wait = next
	}
}

// runSlice executes one slice and reports the wait before the next one and
// whether the scheduler should continue.
func (e *Engine) runSlice(ctx context.Context, id string) (next time.Duration, more bool) {
	e.mu.Lock()
	ent, ok := e.plans[id]
	if !ok || ent.plan.State != domain.TwapRunning || ent.rollingBack {
		e.mu.Unlock()
		return 0, false
	}
	if ent.progress.Done() {
		st, err := e.completeLocked(ent)
		e.mu.Unlock()
		if err == nil {
			e.commit(ctx, st, domain.EventTwapState)
		}
		return 0, false
	}
	plan := ent.plan
	ordinal := ent.progress.SlicesDone + 1
	e.mu.Unlock()

	log := e.log.With(slog.String("plan_id", id), slog.Int("slice", ordinal))
	exCtx := context.WithoutCancel(ctx)

	var seq executor.SequenceResult
	panicked := func() (p any) {
		defer func() { p = recover() }()
		seq = e.deps.Executor.ExecuteSequence(exCtx, plan.Legs, plan.SliceQty)
		return nil
	}()
	if panicked != nil {
		log.ErrorContext(ctx, "twap slice panicked", slog.Any("panic", panicked))
		rec := e.baseRecord(plan, ordinal)
		rec.Ts = e.now().UTC()
		rec.Qty = plan.SliceQty.InexactFloat64()
		rec.Status = domain.StatusFailed
		rec.Reason = domain.ReasonPanic
		rec.Error = fmt.Sprint(panicked)
		e.append(exCtx, rec)
		e.finish(ctx, id, domain.TwapCancelled, rec.Error, 0)
		return 0, false
	}

	base := e.baseRecord(plan, ordinal)
	base.Ts = e.now().UTC()
	rec := executor.AttemptRecord(base, seq, plan.SliceQty, domain.ReasonSlice)
	rec.Recompute()
	e.append(exCtx, rec)
	reversed := 0
	for _, rb := range executor.RollbackRecords(base, seq, plan.SliceQty) {
		e.append(exCtx, rb)
		if rb.Unhedged {
			e.publish(exCtx, domain.EventUnhedgedPosition, rb)
		} else {
			reversed++
		}
	}
	if e.deps.Backfill != nil {
		if fills := executor.PendingFills(seq); len(fills) > 0 {
			e.deps.Backfill.Schedule(exCtx, fills...)
		}
	}

	if !seq.Success() {
		msg := seq.FailureMessage()
		to := Classify(seq.FailureErr(), msg)
		log.WarnContext(ctx, "twap slice failed",
			slog.String("error", msg),
			slog.String("next_state", string(to)),
			slog.Bool("unhedged", rec.Unhedged),
		)
		e.finish(ctx, id, to, msg, reversed)
		return 0, false
	}

	now := e.now().UTC()
	e.mu.Lock()
	ent.progress.RecordSlice(plan.TotalQty, plan.SliceQty)
	for _, l := range seq.Legs {
		ent.filled = append(ent.filled, filledLeg{leg: l.Leg, orderID: l.Result.OrderID, qty: plan.SliceQty})
	}
	ent.progress.LastExecutionTs = &now
	var completed bool
	if ent.progress.Done() && ent.plan.State == domain.TwapRunning && !ent.rollingBack {
		_, err := e.completeLocked(ent)
		completed = err == nil
	} else if !ent.plan.State.Terminal() && !ent.rollingBack {
		nextAt := now.Add(plan.Interval())
		ent.progress.NextExecutionTs = &nextAt
	}
	st := ent.status()
	running := ent.plan.State == domain.TwapRunning && !ent.rollingBack
	e.mu.Unlock()

	log.InfoContext(ctx, "twap slice executed",
		slog.Int("slices_done", st.Progress.SlicesDone),
		slog.Int("slices_total", st.Progress.SlicesTotal),
		slog.String("remaining_qty", st.Progress.RemainingQty.String()),
	)
	e.commit(ctx, st, domain.EventTwapProgress)
	if completed {
		log.InfoContext(ctx, "twap plan completed")
		e.publish(ctx, domain.EventTwapState, st)
		return 0, false
	}
	return plan.Interval(), running
}

func (e *Engine) completeLocked(ent *planEntry) (PlanStatus, error) {
	if err := e.transitionLocked(ent, domain.TwapCompleted); err != nil {
		return PlanStatus{}, err
	}
	ent.progress.NextExecutionTs = nil
	return ent.status(), nil
}

// finish applies a slice failure. A terminal plan keeps its state, and a plan
// under emergency rollback is left for the rollback to cancel. A paused plan
// whose in-flight slice fails moves to the failure state like a running one.
func (e *Engine) finish(ctx context.Context, id string, to domain.TwapState, reason string, reversed int) {
	e.mu.Lock()
	ent, ok := e.plans[id]
	if !ok {
		e.mu.Unlock()
		return
	}
	ent.progress.RolledBackLegs += reversed
	if !ent.plan.State.Terminal() && !ent.rollingBack {
		if err := e.transitionLocked(ent, to); err == nil {
			ent.progress.FailureReason = reason
			ent.progress.NextExecutionTs = nil
		}
	}
	st := ent.status()
	e.mu.Unlock()
	e.commit(ctx, st, domain.EventTwapState)
}

func (e *Engine) baseRecord(plan domain.TwapPlan, ordinal int) domain.ExecutionRecord {
	interval := plan.IntervalMs
	return domain.ExecutionRecord{
		Mode:          domain.ModeTwap,
		StrategyID:    plan.ID,
		TwapID:        domain.IDRef(plan.ID),
		TotalTriggers: ordinal,
		IntervalMs:    &interval,
	}
}

// ---------------------------------------------------------------------------
// Persistence and lifecycle
// ---------------------------------------------------------------------------

// Restore loads persisted plans. Plans that were running come back paused;
// the legs still open are rebuilt from the audit log.
func (e *Engine) Restore(ctx context.Context) error {
	if e.deps.Store == nil {
		return nil
	}
	plans, progress, err := e.deps.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("twap: restore plans: %w", err)
	}
	byID := make(map[string]domain.TwapProgress, len(progress))
	for _, p := range progress {
		byID[p.PlanID] = p
	}

	var restored []PlanStatus
	for _, p := range plans {
		prog, ok := byID[p.ID]
		if !ok {
			prog = domain.NewTwapProgress(p)
		}
		if p.State == domain.TwapRunning {
			p.State = domain.TwapPaused
			prog.State = domain.TwapPaused
		}
		ent := &planEntry{plan: p, progress: prog}
		if !p.State.Terminal() {
			recs, err := e.deps.Audit.List(ctx, audit.Filter{Mode: domain.ModeTwap, StrategyID: p.ID})
			if err != nil {
				e.log.WarnContext(ctx, "open legs not rebuilt",
					slog.String("plan_id", p.ID),
					slog.String("error", err.Error()),
				)
			} else {
				ent.filled = openLegs(recs)
			}
		}
		e.mu.Lock()
		e.plans[p.ID] = ent
		e.mu.Unlock()
		restored = append(restored, ent.status())
	}
	for _, st := range restored {
		if err := e.deps.Store.Upsert(ctx, st.Plan, st.Progress); err != nil {
			e.log.WarnContext(ctx, "plan not persisted", slog.String("plan_id", st.Plan.ID), slog.String("error", err.Error()))
		}
	}
	e.log.InfoContext(ctx, "twap plans restored", slog.Int("count", len(plans)))
	return nil
}

// openLegs returns the successful legs of recs that no rollback reversed, in
// placement order. recs are newest first.
func openLegs(recs []domain.ExecutionRecord) []filledLeg {
	reversed := make(map[string]bool)
	for _, r := range recs {
		if !r.IsRollback || r.Status != domain.StatusRolledBack {
			continue
		}
		for _, l := range r.AllLegs() {
			if l.OriginalOrderID != "" {
				reversed[l.OriginalOrderID] = true
			}
		}
	}
	var out []filledLeg
	for i := len(recs) - 1; i >= 0; i-- {
		r := recs[i]
		if r.IsRollback {
			continue
		}
		for _, l := range r.AllLegs() {
			if !l.Success || l.OrderID == "" || reversed[l.OrderID] {
				continue
			}
			out = append(out, filledLeg{
				leg:     domain.Leg{Venue: l.Venue, Symbol: l.Symbol, Category: l.Category, Side: l.Side},
				orderID: l.OrderID,
				qty:     decimal.NewFromFloat(l.Qty),
			})
		}
	}
	return out
}

// Shutdown stops every scheduler and waits for in-flight slices to finish
// or ctx to expire. Plan states are left untouched.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, ent := range e.plans {
		if ent.cancel != nil {
			ent.cancel()
		}
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("twap: shutdown: %w", ctx.Err())
	}
}

// Wait blocks until every scheduler goroutine has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (ent *planEntry) status() PlanStatus {
	p := ent.plan
	p.Legs = append([]domain.Leg(nil), p.Legs...)
	return PlanStatus{Plan: p, Progress: ent.progress}
}

func (e *Engine) commit(ctx context.Context, st PlanStatus, t domain.EventType) {
	if e.deps.Store != nil {
		if err := e.deps.Store.Upsert(ctx, st.Plan, st.Progress); err != nil && !errors.Is(err, context.Canceled) {
			e.log.WarnContext(ctx, "plan not persisted",
				slog.String("plan_id", st.Plan.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	e.publish(ctx, t, st)
}

func (e *Engine) append(ctx context.Context, rec domain.ExecutionRecord) {
	if err := e.deps.Audit.Append(ctx, rec); err != nil {
		e.log.ErrorContext(ctx, "audit append failed",
			slog.String("plan_id", rec.ID()),
			slog.String("status", string(rec.Status)),
			slog.String("error", err.Error()),
		)
	}
	e.publish(ctx, domain.EventExecution, rec)
}

func (e *Engine) publish(ctx context.Context, t domain.EventType, payload any) {
	if e.deps.Events == nil {
		return
	}
	e.deps.Events.Publish(ctx, domain.Event{Type: t, Ts: e.now().UTC(), Payload: payload})
}
