package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
	err       error
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streams: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return b.err
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memAlerts struct {
	notified []domain.EventType
	all      []string
}

func (a *memAlerts) Notify(_ context.Context, ev domain.Event) error {
	a.notified = append(a.notified, ev.Type)
	return nil
}

func (a *memAlerts) NotifyAll(_ context.Context, title, _ string) error {
	a.all = append(a.all, title)
	return nil
}

type memLocal struct{ channels []string }

func (l *memLocal) Broadcast(channel string, _ []byte) { l.channels = append(l.channels, channel) }

type terminalPayload bool

func (t terminalPayload) Terminal() bool { return bool(t) }

func TestPublishExecutionGoesToChannelAndStream(t *testing.T) {
	bus := newMemBus()
	svc := NewEventService(bus, nil, nil, slog.Default())

	svc.Publish(context.Background(), domain.Event{Type: domain.EventExecution, Payload: domain.ExecutionRecord{StrategyID: "p1"}})

	require.Len(t, bus.published[ChannelExec], 1)
	require.Len(t, bus.streams[StreamExecutions], 1)

	var got struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(bus.published[ChannelExec][0], &got))
	assert.Equal(t, "execution", got.Type)
	assert.Equal(t, "p1", got.Payload["strategyId"])
}

func TestPublishNonExecutionSkipsStream(t *testing.T) {
	bus := newMemBus()
	svc := NewEventService(bus, nil, nil, slog.Default())

	svc.Publish(context.Background(), domain.Event{Type: domain.EventPairUpdated, Payload: domain.MonitoredPair{ID: "p1"}})

	assert.Len(t, bus.published[ChannelPair], 1)
	assert.Empty(t, bus.streams)
}

func TestPublishBusErrorIsSwallowed(t *testing.T) {
	bus := newMemBus()
	bus.err = errors.New("down")
	alerts := &memAlerts{}
	svc := NewEventService(bus, alerts, nil, slog.Default())

	svc.Publish(context.Background(), domain.Event{Type: domain.EventUnhedgedPosition, Payload: domain.ExecutionRecord{StrategyID: "p1"}})
	assert.Equal(t, []string{"UNHEDGED POSITION p1"}, alerts.all)
}

func TestPublishFallsBackToLocalBroadcast(t *testing.T) {
	local := &memLocal{}
	svc := NewEventService(nil, nil, local, slog.Default())

	svc.Publish(context.Background(), domain.Event{Type: domain.EventTwapProgress})
	svc.Publish(context.Background(), domain.Event{Type: domain.EventUnhedgedPosition})

	assert.Equal(t, []string{ChannelTwap, ChannelAlert}, local.channels)
}

func TestAlertRouting(t *testing.T) {
	alerts := &memAlerts{}
	svc := NewEventService(nil, alerts, nil, slog.Default())
	ctx := context.Background()

	svc.Publish(ctx, domain.Event{Type: domain.EventPairDisabled, Payload: domain.MonitoredPair{ID: "p1"}})
	svc.Publish(ctx, domain.Event{Type: domain.EventTwapState, Payload: terminalPayload(false)})
	svc.Publish(ctx, domain.Event{Type: domain.EventTwapState, Payload: terminalPayload(true)})
	svc.Publish(ctx, domain.Event{Type: domain.EventExecution, Payload: domain.ExecutionRecord{}})

	assert.Equal(t, []domain.EventType{domain.EventPairDisabled, domain.EventTwapState}, alerts.notified)
	assert.Empty(t, alerts.all)
}

func TestChannelFor(t *testing.T) {
	assert.Equal(t, ChannelExec, ChannelFor(domain.EventPriceUpdate))
	assert.Equal(t, ChannelPair, ChannelFor(domain.EventPairDisabled))
	assert.Equal(t, ChannelTwap, ChannelFor(domain.EventTwapState))
	assert.Equal(t, ChannelAlert, ChannelFor(domain.EventUnhedgedPosition))
}
