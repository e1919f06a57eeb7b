package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type patchSink struct {
	mu      sync.Mutex
	patches map[string]float64
}

func (s *patchSink) PatchPrice(_ context.Context, orderID string, price float64) (domain.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.patches == nil {
		s.patches = make(map[string]float64)
	}
	s.patches[orderID] = price
	return domain.ExecutionRecord{Status: domain.StatusSuccess}, nil
}

func (s *patchSink) get(orderID string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patches[orderID]
	return p, ok
}

type eventRecorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *eventRecorder) Publish(_ context.Context, ev domain.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func TestPendingFillsOnlyMissingPrices(t *testing.T) {
	a, b, res := newVenues()
	a.SetFillPrice(0)
	b.SetFillPrice(101)
	ex := New(res, time.Second, discardLogger())

	seq := ex.ExecuteSequence(context.Background(), []domain.Leg{legSell, legBuy}, decimal.NewFromInt(1))
	fills := PendingFills(seq)
	require.Len(t, fills, 1)
	assert.Equal(t, "va-1", fills[0].OrderID)
	assert.Equal(t, "va", fills[0].Venue)
}

func TestBackfillPatchesOnLaterAttempt(t *testing.T) {
	a, _, res := newVenues()
	sink := &patchSink{}
	events := &eventRecorder{}
	bf := NewBackfiller(res, sink, events,
		[]time.Duration{5 * time.Millisecond, 5 * time.Millisecond, 5 * time.Millisecond},
		discardLogger())

	// Price appears only after the first attempt has run.
	go func() {
		for a.FillCalls() < 1 {
			time.Sleep(time.Millisecond)
		}
		a.SetFill("va-9", 100.5)
	}()
	bf.Schedule(context.Background(), PendingFill{Venue: "va", Symbol: "BTCUSDT", Category: domain.CategoryLinear, OrderID: "va-9"})
	bf.Wait()

	p, ok := sink.get("va-9")
	require.True(t, ok)
	assert.Equal(t, 100.5, p)
	assert.GreaterOrEqual(t, a.FillCalls(), 2)
	require.Len(t, events.events, 1)
	assert.Equal(t, domain.EventPriceUpdate, events.events[0].Type)
}

func TestBackfillGivesUpAfterSchedule(t *testing.T) {
	a, _, res := newVenues()
	sink := &patchSink{}
	bf := NewBackfiller(res, sink, nil,
		[]time.Duration{time.Millisecond, time.Millisecond, time.Millisecond},
		discardLogger())

	bf.Schedule(context.Background(), PendingFill{Venue: "va", OrderID: "va-1"})
	bf.Wait()

	assert.Equal(t, 3, a.FillCalls())
	_, ok := sink.get("va-1")
	assert.False(t, ok)
}

func TestBackfillDeduplicatesOrders(t *testing.T) {
	a, _, res := newVenues()
	bf := NewBackfiller(res, &patchSink{}, nil, []time.Duration{time.Millisecond}, discardLogger())

	f := PendingFill{Venue: "va", OrderID: "va-1"}
	bf.Schedule(context.Background(), f, f)
	bf.Schedule(context.Background(), f)
	bf.Wait()

	assert.Equal(t, 1, a.FillCalls())
}

func TestDedupClaimsPerVenueUntilExpiry(t *testing.T) {
	d := NewDedup(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	assert.True(t, d.Claim(PendingFill{Venue: "va", OrderID: "1"}))
	assert.False(t, d.Claim(PendingFill{Venue: "va", OrderID: "1"}))
	assert.True(t, d.Claim(PendingFill{Venue: "vb", OrderID: "1"}), "ids are scoped by venue")
	assert.Equal(t, 2, d.Len())

	now = now.Add(time.Minute)
	assert.True(t, d.Claim(PendingFill{Venue: "va", OrderID: "1"}))
	assert.Equal(t, 1, d.Len())
}

func TestBackfillCloseAbandonsRetries(t *testing.T) {
	a, _, res := newVenues()
	bf := NewBackfiller(res, &patchSink{}, nil, []time.Duration{time.Hour}, discardLogger())
	bf.Schedule(context.Background(), PendingFill{Venue: "va", OrderID: "va-1"})

	done := make(chan struct{})
	go func() {
		bf.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}
	assert.Zero(t, a.FillCalls())
}
