package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/audit"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/twap"
)

type fakeArb struct {
	pairs   map[string]domain.MonitoredPair
	running bool
	busy    bool
}

func (f *fakeArb) UpsertPair(_ context.Context, p domain.MonitoredPair) (domain.MonitoredPair, error) {
	if !p.QtyPerTrigger.IsPositive() {
		return domain.MonitoredPair{}, domain.ErrInvalidPair
	}
	if p.ID == "" {
		p.ID = "gen"
	}
	f.pairs[p.ID] = p
	return p, nil
}

func (f *fakeArb) RemovePair(_ context.Context, id string) error {
	if f.busy {
		return domain.ErrPairBusy
	}
	if _, ok := f.pairs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.pairs, id)
	return nil
}

func (f *fakeArb) GetPair(id string) (domain.MonitoredPair, error) {
	p, ok := f.pairs[id]
	if !ok {
		return domain.MonitoredPair{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeArb) ListPairs() []domain.MonitoredPair {
	var out []domain.MonitoredPair
	for _, p := range f.pairs {
		out = append(out, p)
	}
	return out
}

func (f *fakeArb) Start()        { f.running = true }
func (f *fakeArb) Stop()         { f.running = false }
func (f *fakeArb) Running() bool { return f.running }

func do(t *testing.T, h http.HandlerFunc, method, target, body string, pathValues ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(pathValues); i += 2 {
		req.SetPathValue(pathValues[i], pathValues[i+1])
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestArbHandlerUpsertAndGet(t *testing.T) {
	arb := &fakeArb{pairs: map[string]domain.MonitoredPair{}}
	h := NewArbHandler(arb, slog.Default())

	body := `{"id":"p1","leg1":{"venue":"a","symbol":"BTCUSDT","marketCategory":"spot","side":"sell"},
		"leg2":{"venue":"b","symbol":"BTCUSDT","marketCategory":"linear","side":"buy"},
		"thresholdPercent":0.1,"qtyPerTrigger":"0.01","maxExecutions":3}`
	rec := do(t, h.UpsertPair, http.MethodPost, "/api/pairs", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, arb.pairs["p1"].Enabled)
	assert.True(t, arb.pairs["p1"].QtyPerTrigger.Equal(decimal.RequireFromString("0.01")))

	rec = do(t, h.GetPair, http.MethodGet, "/api/pairs/p1", "", "id", "p1")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.GetPair, http.MethodGet, "/api/pairs/nope", "", "id", "nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestArbHandlerRejectsBadInput(t *testing.T) {
	h := NewArbHandler(&fakeArb{pairs: map[string]domain.MonitoredPair{}}, slog.Default())

	rec := do(t, h.UpsertPair, http.MethodPost, "/api/pairs", `{"unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.UpsertPair, http.MethodPost, "/api/pairs", `{"qtyPerTrigger":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestArbHandlerDeleteBusy(t *testing.T) {
	arb := &fakeArb{pairs: map[string]domain.MonitoredPair{"p1": {ID: "p1"}}, busy: true}
	h := NewArbHandler(arb, slog.Default())

	rec := do(t, h.DeletePair, http.MethodDelete, "/api/pairs/p1", "", "id", "p1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	arb.busy = false
	rec = do(t, h.DeletePair, http.MethodDelete, "/api/pairs/p1", "", "id", "p1")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestArbHandlerStartStopStatus(t *testing.T) {
	arb := &fakeArb{pairs: map[string]domain.MonitoredPair{
		"p1": {ID: "p1", Enabled: true, MaxExecutions: 2},
		"p2": {ID: "p2", Enabled: false, MaxExecutions: 2},
	}}
	h := NewArbHandler(arb, slog.Default())

	rec := do(t, h.Start, http.MethodPost, "/api/arbitrage/start", "")
	var st statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, statusResponse{Running: true, Pairs: 2, Enabled: 1}, st)

	do(t, h.Stop, http.MethodPost, "/api/arbitrage/stop", "")
	assert.False(t, arb.running)
}

type fakeTwap struct {
	plans   map[string]twap.PlanStatus
	actions []string
}

func (f *fakeTwap) CreatePlan(_ context.Context, p domain.TwapPlan) (twap.PlanStatus, error) {
	if err := p.Validate(); err != nil {
		return twap.PlanStatus{}, err
	}
	p.State = domain.TwapPending
	st := twap.PlanStatus{Plan: p, Progress: domain.NewTwapProgress(p)}
	f.plans[p.ID] = st
	return st, nil
}

func (f *fakeTwap) GetPlan(id string) (twap.PlanStatus, error) {
	st, ok := f.plans[id]
	if !ok {
		return twap.PlanStatus{}, domain.ErrNotFound
	}
	return st, nil
}

func (f *fakeTwap) ListPlans() []twap.PlanStatus { return nil }

func (f *fakeTwap) Executions(context.Context, string, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}

func (f *fakeTwap) act(name string) func(context.Context, string) (twap.PlanStatus, error) {
	return func(_ context.Context, id string) (twap.PlanStatus, error) {
		f.actions = append(f.actions, name)
		if name == "pause" {
			return twap.PlanStatus{}, domain.ErrInvalidTransition
		}
		return f.GetPlan(id)
	}
}

func (f *fakeTwap) Start(ctx context.Context, id string) (twap.PlanStatus, error) {
	return f.act("start")(ctx, id)
}

func (f *fakeTwap) Pause(ctx context.Context, id string) (twap.PlanStatus, error) {
	return f.act("pause")(ctx, id)
}

func (f *fakeTwap) Resume(ctx context.Context, id string) (twap.PlanStatus, error) {
	return f.act("resume")(ctx, id)
}

func (f *fakeTwap) Cancel(ctx context.Context, id string) (twap.PlanStatus, error) {
	return f.act("cancel")(ctx, id)
}

func (f *fakeTwap) EmergencyRollback(ctx context.Context, id string) (twap.PlanStatus, error) {
	return f.act("rollback")(ctx, id)
}

func TestTwapHandlerCreateAndActions(t *testing.T) {
	eng := &fakeTwap{plans: map[string]twap.PlanStatus{}}
	h := NewTwapHandler(eng, slog.Default())

	body := `{"id":"plan-1","totalQty":"1","sliceQty":"0.25","intervalMs":60000,"start":true,
		"legs":[{"venue":"a","symbol":"BTCUSDT","marketCategory":"spot","side":"buy"}]}`
	rec := do(t, h.CreatePlan, http.MethodPost, "/api/twap", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"start"}, eng.actions)

	rec = do(t, h.Action, http.MethodPost, "/api/twap/plan-1/rollback", "", "id", "plan-1", "action", "rollback")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h.Action, http.MethodPost, "/api/twap/plan-1/pause", "", "id", "plan-1", "action", "pause")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h.Action, http.MethodPost, "/api/twap/plan-1/explode", "", "id", "plan-1", "action", "explode")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h.GetPlan, http.MethodGet, "/api/twap/plan-1", "", "id", "plan-1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"executions":[]`)
}

func TestTwapHandlerCreateInvalid(t *testing.T) {
	h := NewTwapHandler(&fakeTwap{plans: map[string]twap.PlanStatus{}}, slog.Default())
	rec := do(t, h.CreatePlan, http.MethodPost, "/api/twap", `{"id":"x","totalQty":"1","sliceQty":"2","intervalMs":1,"legs":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeAudit struct {
	got audit.Filter
}

func (f *fakeAudit) List(_ context.Context, filter audit.Filter) ([]domain.ExecutionRecord, error) {
	f.got = filter
	return []domain.ExecutionRecord{{StrategyID: "p1"}}, nil
}

func (f *fakeAudit) Summary(context.Context) audit.Summary { return audit.Summary{} }

func TestExecutionHandlerList(t *testing.T) {
	a := &fakeAudit{}
	h := NewExecutionHandler(a, slog.Default())

	rec := do(t, h.List, http.MethodGet, "/api/executions?limit=5000&mode=twap&strategy=plan-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, audit.Filter{Mode: domain.ModeTwap, StrategyID: "plan-1", Limit: 1000}, a.got)

	rec = do(t, h.List, http.MethodGet, "/api/executions?mode=pair&strategy=p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, audit.Filter{Mode: domain.ModePair, StrategyID: "p1", Limit: 100}, a.got)

	rec = do(t, h.List, http.MethodGet, "/api/executions?mode=arbitrage", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeQuotes struct{ err error }

func (f fakeQuotes) GetTopOfBook(_ context.Context, venue, symbol string, category domain.MarketCategory, _ time.Duration) (domain.TopOfBook, error) {
	if f.err != nil {
		return domain.TopOfBook{}, f.err
	}
	return domain.TopOfBook{Venue: venue, Symbol: symbol, Category: category, BidPrice: 1, AskPrice: 2}, nil
}

func TestQuoteHandler(t *testing.T) {
	h := NewQuoteHandler(fakeQuotes{}, slog.Default())
	rec := do(t, h.Get, http.MethodGet, "/api/quotes?venue=a&symbol=BTCUSDT&category=linear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"marketCategory":"linear"`)

	rec = do(t, h.Get, http.MethodGet, "/api/quotes?venue=a", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	h = NewQuoteHandler(fakeQuotes{err: domain.ErrQuoteUnavailable}, slog.Default())
	rec = do(t, h.Get, http.MethodGet, "/api/quotes?venue=a&symbol=X", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthDegraded(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"redis":    func(context.Context) error { return errors.New("refused") },
		"postgres": func(context.Context) error { return nil },
	}, slog.Default())
	rec := do(t, h.HealthCheck, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"postgres":"ok"`)
}
