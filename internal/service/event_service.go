// Package service holds cross-cutting application services shared by the
// engines.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Event channels and streams.
const (
	ChannelExec  = "ch:exec"
	ChannelPair  = "ch:pair"
	ChannelTwap  = "ch:twap"
	ChannelAlert = "ch:alert"

	StreamExecutions = "stream:executions"
)

// Channels lists every channel events are published on.
var Channels = []string{ChannelExec, ChannelPair, ChannelTwap, ChannelAlert}

// Alerter forwards events to operators.
type Alerter interface {
	Notify(ctx context.Context, ev domain.Event) error
	NotifyAll(ctx context.Context, title, message string) error
}

// Broadcaster fans events out to in-process subscribers such as the
// websocket hub when no signal bus is configured.
type Broadcaster interface {
	Broadcast(channel string, data []byte)
}

// EventService implements domain.EventPublisher. Delivery failures are
// logged and never returned to the caller.
type EventService struct {
	bus    domain.SignalBus
	alerts Alerter
	local  Broadcaster
	now    func() time.Time
	logger *slog.Logger
}

var _ domain.EventPublisher = (*EventService)(nil)

// NewEventService creates an EventService. Any dependency may be nil.
func NewEventService(bus domain.SignalBus, alerts Alerter, local Broadcaster, logger *slog.Logger) *EventService {
	return &EventService{
		bus:    bus,
		alerts: alerts,
		local:  local,
		now:    time.Now,
		logger: logger.With(slog.String("component", "events")),
	}
}

// ChannelFor maps an event type to its channel.
func ChannelFor(t domain.EventType) string {
	switch t {
	case domain.EventExecution, domain.EventPriceUpdate:
		return ChannelExec
	case domain.EventPairUpdated, domain.EventPairDisabled:
		return ChannelPair
	case domain.EventTwapState, domain.EventTwapProgress:
		return ChannelTwap
	default:
		return ChannelAlert
	}
}

// Publish broadcasts ev and routes alert-class events to the notifier.
func (s *EventService) Publish(ctx context.Context, ev domain.Event) {
	if ev.Ts.IsZero() {
		ev.Ts = s.now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal event failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	channel := ChannelFor(ev.Type)
	switch {
	case s.bus != nil:
		if err := s.bus.Publish(ctx, channel, data); err != nil {
			s.logger.WarnContext(ctx, "publish event failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
		if ev.Type == domain.EventExecution {
			if err := s.bus.StreamAppend(ctx, StreamExecutions, data); err != nil {
				s.logger.WarnContext(ctx, "stream append failed", slog.String("error", err.Error()))
			}
		}
	case s.local != nil:
		s.local.Broadcast(channel, data)
	default:
		s.logger.DebugContext(ctx, "event", slog.String("type", string(ev.Type)))
	}

	s.alert(ctx, ev)
}

func (s *EventService) alert(ctx context.Context, ev domain.Event) {
	if s.alerts == nil {
		return
	}
	var err error
	switch ev.Type {
	case domain.EventUnhedgedPosition:
		title, msg := alertText(ev)
		err = s.alerts.NotifyAll(ctx, title, msg)
	case domain.EventPairDisabled, domain.EventTwapState:
		if !alertWorthy(ev) {
			return
		}
		err = s.alerts.Notify(ctx, ev)
	default:
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "alert delivery failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// alertWorthy keeps TWAP alerts to terminal states.
func alertWorthy(ev domain.Event) bool {
	if ev.Type != domain.EventTwapState {
		return true
	}
	p, ok := ev.Payload.(interface{ Terminal() bool })
	return ok && p.Terminal()
}

func alertText(ev domain.Event) (string, string) {
	rec, ok := ev.Payload.(domain.ExecutionRecord)
	if !ok {
		return "UNHEDGED POSITION", "rollback failed"
	}
	id := rec.StrategyID
	msg := "rollback failed: " + rec.Error
	for _, l := range rec.AllLegs() {
		msg += "\n" + string(l.Side) + " " + l.Venue + " " + string(l.Category) + "/" + l.Symbol + " order=" + l.OriginalOrderID
	}
	return "UNHEDGED POSITION " + id, msg
}
