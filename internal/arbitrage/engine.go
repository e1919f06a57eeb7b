// Package arbitrage runs the spread-triggered strategy: it evaluates every
// monitored pair on a fixed period and executes both legs when the
// normalised spread reaches the pair's threshold.
package arbitrage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/executor"
)

// DefaultPeriod is the evaluation cycle period.
const DefaultPeriod = 250 * time.Millisecond

// LegExecutor places two coupled legs with rollback.
type LegExecutor interface {
	Execute(ctx context.Context, a, b domain.Leg, qty decimal.Decimal) executor.TwoLegResult
}

// AuditLog appends execution records.
type AuditLog interface {
	Append(ctx context.Context, rec domain.ExecutionRecord) error
}

// FillScheduler re-queries missing fill prices.
type FillScheduler interface {
	Schedule(ctx context.Context, fills ...executor.PendingFill)
}

// Config holds engine tunables.
type Config struct {
	Period      time.Duration
	MaxQuoteAge time.Duration
}

// Deps bundles the engine's collaborators. Backfill, Events and Store are
// optional.
type Deps struct {
	Quotes   domain.QuoteProvider
	Venues   domain.VenueResolver
	Executor LegExecutor
	Audit    AuditLog
	Backfill FillScheduler
	Events   domain.EventPublisher
	Store    domain.PairStore
	Logger   *slog.Logger
}

// Engine evaluates monitored pairs and triggers executions.
type Engine struct {
	cfg  Config
	deps Deps
	now  func() time.Time
	log  *slog.Logger

	pairs *Registry
	locks *LockSet
	execs sync.WaitGroup

	runMu   sync.Mutex
	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine creates an Engine. Zero config values select the defaults.
func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.MaxQuoteAge <= 0 {
		cfg.MaxQuoteAge = domain.DefaultQuoteMaxAge
	}
	return &Engine{
		cfg:     cfg,
		deps:    deps,
		now:     time.Now,
		log:     deps.Logger.With(slog.String("component", "arbitrage_engine")),
		pairs:   NewRegistry(),
		locks:   NewLockSet(),
		baseCtx: context.Background(),
	}
}

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

// UpsertPair registers a new pair or updates an existing one. An empty ID is
// replaced by a generated one. Both leg venues must be registered.
func (e *Engine) UpsertPair(ctx context.Context, p domain.MonitoredPair) (domain.MonitoredPair, error) {
	if strings.TrimSpace(p.ID) == "" {
		p.ID = uuid.NewString()
	}
	for _, leg := range []domain.Leg{p.Leg1, p.Leg2} {
		if _, err := e.deps.Venues.Client(leg.Venue); err != nil {
			return domain.MonitoredPair{}, fmt.Errorf("%w: leg venue %q: %v", domain.ErrInvalidPair, leg.Venue, err)
		}
	}
	stored, created, err := e.pairs.Upsert(p, e.now().UTC())
	if err != nil {
		return domain.MonitoredPair{}, err
	}
	e.persist(ctx, stored)
	e.publish(ctx, domain.EventPairUpdated, stored)
	e.log.InfoContext(ctx, "pair registered",
		slog.String("pair_id", stored.ID),
		slog.Bool("created", created),
		slog.Bool("enabled", stored.Enabled),
		slog.Float64("threshold_pct", stored.ThresholdPercent),
	)
	return stored, nil
}

// RemovePair deletes a pair. It is refused while an execution is in flight.
func (e *Engine) RemovePair(ctx context.Context, id string) error {
	if e.locks.Held(id) {
		return fmt.Errorf("arbitrage: remove %s: %w", id, domain.ErrPairBusy)
	}
	if err := e.pairs.Remove(id); err != nil {
		return err
	}
	if e.deps.Store != nil {
		if err := e.deps.Store.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			e.log.WarnContext(ctx, "pair delete not persisted",
				slog.String("pair_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// GetPair returns one pair.
func (e *Engine) GetPair(id string) (domain.MonitoredPair, error) {
	return e.pairs.Get(id)
}

// ListPairs returns every pair.
func (e *Engine) ListPairs() []domain.MonitoredPair {
	return e.pairs.List()
}

// Restore loads persisted pairs from the store.
func (e *Engine) Restore(ctx context.Context) error {
	if e.deps.Store == nil {
		return nil
	}
	pairs, err := e.deps.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("arbitrage: restore pairs: %w", err)
	}
	e.pairs.Restore(pairs)
	e.log.InfoContext(ctx, "pairs restored", slog.Int("count", len(pairs)))
	return nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Run binds the engine to ctx, optionally starts evaluation, and blocks until
// ctx is cancelled. On return the loop is stopped and in-flight executions
// have completed.
func (e *Engine) Run(ctx context.Context, autoStart bool) error {
	e.runMu.Lock()
	e.baseCtx = ctx
	e.runMu.Unlock()

	if autoStart {
		e.Start()
	}
	<-ctx.Done()
	e.Stop()
	e.Wait()
	return ctx.Err()
}

// Start launches the evaluation loop. Calling Start on a running engine is a
// no-op.
func (e *Engine) Start() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(e.baseCtx)
	done := make(chan struct{})
	e.cancel, e.done = cancel, done
	go func() {
		defer close(done)
		e.loop(ctx)
	}()
	e.log.Info("arbitrage engine started", slog.Duration("period", e.cfg.Period))
}

// Stop halts the evaluation loop and waits for the current cycle to finish.
// Executions already dispatched run to completion.
func (e *Engine) Stop() {
	e.runMu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.log.Info("arbitrage engine stopped")
}

// Running reports whether the evaluation loop is active.
func (e *Engine) Running() bool {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	return e.cancel != nil
}

// Wait blocks until every dispatched execution has finished.
func (e *Engine) Wait() {
	e.execs.Wait()
}

func (e *Engine) loop(ctx context.Context) {
	for {
		started := e.now()
		e.EvaluateOnce(ctx)

		sleep := e.cfg.Period - e.now().Sub(started)
		if sleep < 0 {
			sleep = 0
		}
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// EvaluateOnce runs one cycle over every eligible pair and returns how many
// executions it dispatched.
func (e *Engine) EvaluateOnce(ctx context.Context) int {
	dispatched := 0
	for _, p := range e.pairs.List() {
		if ctx.Err() != nil {
			return dispatched
		}
		if !p.Eligible() || e.locks.Held(p.ID) {
			continue
		}
		if e.evaluatePair(ctx, p) {
			dispatched++
		}
	}
	return dispatched
}

func (e *Engine) evaluatePair(ctx context.Context, p domain.MonitoredPair) (dispatched bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.ErrorContext(ctx, "pair evaluation panicked",
				slog.String("pair_id", p.ID),
				slog.Any("panic", r),
			)
			dispatched = false
		}
	}()

	q1, err := e.deps.Quotes.GetTopOfBook(ctx, p.Leg1.Venue, p.Leg1.Symbol, p.Leg1.Category, e.cfg.MaxQuoteAge)
	if err != nil {
		e.log.DebugContext(ctx, "leg1 quote unavailable", slog.String("pair_id", p.ID))
		return false
	}
	q2, err := e.deps.Quotes.GetTopOfBook(ctx, p.Leg2.Venue, p.Leg2.Symbol, p.Leg2.Category, e.cfg.MaxQuoteAge)
	if err != nil {
		e.log.DebugContext(ctx, "leg2 quote unavailable", slog.String("pair_id", p.ID))
		return false
	}

	ev := Evaluate(p, q1, q2)
	if !ev.Triggered {
		return false
	}

	release, ok := e.locks.TryAcquire(p.ID)
	if !ok {
		return false
	}
	// The cycle's snapshot may predate an execution that finished since.
	fresh, err := e.pairs.Get(p.ID)
	if err != nil || !fresh.Eligible() {
		release()
		return false
	}
	if ev = Evaluate(fresh, q1, q2); !ev.Triggered {
		release()
		return false
	}
	p = fresh
	e.runMu.Lock()
	execCtx := e.baseCtx
	e.runMu.Unlock()

	e.execs.Add(1)
	go func() {
		defer e.execs.Done()
		defer release()
		e.execute(execCtx, p, ev)
	}()
	return true
}

func (e *Engine) execute(ctx context.Context, p domain.MonitoredPair, ev Evaluation) {
	ctx = context.WithoutCancel(ctx)
	trigger := e.pairs.NextTrigger(p.ID)
	threshold := p.ThresholdPercent
	base := domain.ExecutionRecord{
		Mode:          domain.ModePair,
		StrategyID:    p.ID,
		PairID:        domain.IDRef(p.ID),
		TotalTriggers: trigger,
		Spread:        ev.Spread,
		SpreadPercent: ev.Percent,
		Threshold:     &threshold,
	}
	log := e.log.With(slog.String("pair_id", p.ID), slog.Int("trigger", trigger))

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "execution panicked", slog.Any("panic", r))
			rec := base
			rec.Ts = e.now().UTC()
			rec.Qty = p.QtyPerTrigger.InexactFloat64()
			rec.Status = domain.StatusFailed
			rec.Reason = domain.ReasonPanic
			rec.Error = fmt.Sprint(r)
			e.append(ctx, rec)
			e.recordOutcome(ctx, p.ID, false)
		}
	}()

	log.InfoContext(ctx, "spread threshold reached, executing",
		slog.Float64("spread", ev.Spread),
		slog.Float64("spread_pct", ev.Percent),
		slog.Float64("threshold_pct", threshold),
	)

	res := e.deps.Executor.Execute(ctx, p.Leg1, p.Leg2, p.QtyPerTrigger)
	seq := res.Sequence

	base.Ts = e.now().UTC()
	rec := executor.AttemptRecord(base, seq, p.QtyPerTrigger, domain.ReasonTriggered)
	e.append(ctx, rec)
	for _, rb := range executor.RollbackRecords(base, seq, p.QtyPerTrigger) {
		e.append(ctx, rb)
		if rb.Unhedged {
			e.publish(ctx, domain.EventUnhedgedPosition, rb)
		}
	}
	if e.deps.Backfill != nil {
		if fills := executor.PendingFills(seq); len(fills) > 0 {
			e.deps.Backfill.Schedule(ctx, fills...)
		}
	}

	if res.Success() {
		log.InfoContext(ctx, "pair executed",
			slog.String("leg1_order_id", res.A.Result.OrderID),
			slog.String("leg2_order_id", res.B.Result.OrderID),
		)
	} else {
		log.WarnContext(ctx, "pair execution failed",
			slog.String("error", rec.Error),
			slog.Bool("rolled_back", res.RolledBack),
			slog.Bool("unhedged", rec.Unhedged),
		)
	}
	e.recordOutcome(ctx, p.ID, res.Success())
}

func (e *Engine) recordOutcome(ctx context.Context, id string, success bool) {
	updated, disabled, err := e.pairs.RecordOutcome(id, success, e.now().UTC())
	if err != nil {
		// Pair removed while executing; nothing to update.
		return
	}
	e.persist(ctx, updated)
	if disabled {
		e.log.WarnContext(ctx, "pair disabled",
			slog.String("pair_id", id),
			slog.String("reason", updated.DisabledReason),
			slog.Int("executions", updated.ExecutionsSoFar),
		)
		e.publish(ctx, domain.EventPairDisabled, updated)
	} else {
		e.publish(ctx, domain.EventPairUpdated, updated)
	}
}

func (e *Engine) append(ctx context.Context, rec domain.ExecutionRecord) {
	if err := e.deps.Audit.Append(ctx, rec); err != nil {
		e.log.ErrorContext(ctx, "audit append failed",
			slog.String("pair_id", rec.ID()),
			slog.String("status", string(rec.Status)),
			slog.String("error", err.Error()),
		)
	}
	e.publish(ctx, domain.EventExecution, rec)
}

func (e *Engine) persist(ctx context.Context, p domain.MonitoredPair) {
	if e.deps.Store == nil {
		return
	}
	if err := e.deps.Store.Upsert(ctx, p); err != nil {
		e.log.WarnContext(ctx, "pair not persisted",
			slog.String("pair_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publish(ctx context.Context, t domain.EventType, payload any) {
	if e.deps.Events == nil {
		return
	}
	e.deps.Events.Publish(ctx, domain.Event{Type: t, Ts: e.now().UTC(), Payload: payload})
}
