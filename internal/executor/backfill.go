package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// DefaultBackfillDelays is the retry schedule for missing fill prices.
var DefaultBackfillDelays = []time.Duration{2 * time.Second, 3 * time.Second, 5 * time.Second}

// PricePatcher updates the most recent audit record carrying orderID.
type PricePatcher interface {
	PatchPrice(ctx context.Context, orderID string, price float64) (domain.ExecutionRecord, error)
}

// PendingFill identifies a successful order placed without a known price.
type PendingFill struct {
	Venue    string
	Symbol   string
	Category domain.MarketCategory
	OrderID  string
}

// PendingFills lists every successful leg and compensating order of seq whose
// price is missing.
func PendingFills(seq SequenceResult) []PendingFill {
	var out []PendingFill
	add := func(leg domain.Leg, r domain.OrderResult) {
		if r.Success && r.OrderID != "" && r.Price <= 0 {
			out = append(out, PendingFill{
				Venue: leg.Venue, Symbol: leg.Symbol, Category: leg.Category, OrderID: r.OrderID,
			})
		}
	}
	for _, l := range seq.Legs {
		add(l.Leg, l.Result)
	}
	for _, rb := range seq.Rollbacks {
		add(rb.Leg, rb.Result)
	}
	return out
}

// Backfiller re-queries fill prices on a fixed schedule and patches the audit
// log when the venue reports one.
type Backfiller struct {
	venues domain.VenueResolver
	sink   PricePatcher
	events domain.EventPublisher
	delays []time.Duration
	dedup  *Dedup
	logger *slog.Logger

	wg       sync.WaitGroup
	stop     chan struct{}
	stopOnce sync.Once
}

// NewBackfiller creates a Backfiller. An empty delays slice selects
// DefaultBackfillDelays. events may be nil.
func NewBackfiller(
	venues domain.VenueResolver,
	sink PricePatcher,
	events domain.EventPublisher,
	delays []time.Duration,
	logger *slog.Logger,
) *Backfiller {
	if len(delays) == 0 {
		delays = DefaultBackfillDelays
	}
	var span time.Duration
	for _, d := range delays {
		span += d
	}
	return &Backfiller{
		venues: venues,
		sink:   sink,
		events: events,
		delays: append([]time.Duration(nil), delays...),
		dedup:  NewDedup(span + time.Minute),
		logger: logger.With(slog.String("component", "price_backfill")),
		stop:   make(chan struct{}),
	}
}

// Schedule starts one background retry loop per pending fill. Call it only
// after the record carrying the order ids has been appended.
func (b *Backfiller) Schedule(ctx context.Context, fills ...PendingFill) {
	ctx = context.WithoutCancel(ctx)
	for _, f := range fills {
		if !b.dedup.Claim(f) {
			continue
		}
		b.wg.Add(1)
		go func(f PendingFill) {
			defer b.wg.Done()
			b.run(ctx, f)
		}(f)
	}
}

func (b *Backfiller) run(ctx context.Context, f PendingFill) {
	log := b.logger.With(
		slog.String("venue", f.Venue),
		slog.String("symbol", f.Symbol),
		slog.String("order_id", f.OrderID),
	)
	client, err := b.venues.Client(f.Venue)
	if err != nil {
		log.WarnContext(ctx, "backfill: venue unavailable", slog.String("error", err.Error()))
		return
	}

	for attempt, delay := range b.delays {
		t := time.NewTimer(delay)
		select {
		case <-b.stop:
			t.Stop()
			return
		case <-t.C:
		}

		price, err := client.GetFillPrice(ctx, f.OrderID, f.Symbol, f.Category)
		if err != nil || price <= 0 {
			msg := "price not yet available"
			if err != nil {
				msg = err.Error()
			}
			log.DebugContext(ctx, "backfill attempt missed",
				slog.Int("attempt", attempt+1),
				slog.String("reason", msg),
			)
			continue
		}

		rec, err := b.sink.PatchPrice(ctx, f.OrderID, price)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				log.WarnContext(ctx, "backfill: no audit record carries order")
			} else {
				log.WarnContext(ctx, "backfill: patch failed", slog.String("error", err.Error()))
			}
			return
		}
		log.InfoContext(ctx, "fill price backfilled",
			slog.Float64("price", price),
			slog.Int("attempt", attempt+1),
		)
		if b.events != nil {
			b.events.Publish(ctx, domain.Event{
				Type:    domain.EventPriceUpdate,
				Ts:      time.Now().UTC(),
				Payload: domain.PriceUpdate{OrderID: f.OrderID, Price: price, Record: rec},
			})
		}
		return
	}
	log.WarnContext(ctx, "backfill exhausted, price left unknown",
		slog.Int("attempts", len(b.delays)),
	)
}

// Wait blocks until every scheduled loop has finished.
func (b *Backfiller) Wait() {
	b.wg.Wait()
}

// Close abandons pending retries and waits for the loops to exit.
func (b *Backfiller) Close() {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
}
