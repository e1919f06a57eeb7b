// Package notify forwards operator alerts (unhedged positions, disabled
// pairs, terminal TWAP states) to chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

// Sender delivers one message to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches to every Sender. Notify honours the configured event
// filter; NotifyAll bypasses it and is used for unhedged positions.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every type.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether at least one sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify formats ev and sends it when its type passes the filter.
func (n *Notifier) Notify(ctx context.Context, ev domain.Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		return nil
	}
	title, msg := Format(ev)
	return n.dispatch(ctx, title, msg)
}

// NotifyAll sends regardless of the event filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

// Format renders an event as a title and a plain-text body.
func Format(ev domain.Event) (string, string) {
	switch p := ev.Payload.(type) {
	case domain.ExecutionRecord:
		title := fmt.Sprintf("%s %s %s", p.Mode, p.StrategyID, p.Status)
		if p.Unhedged {
			title = "UNHEDGED POSITION " + p.StrategyID
		}
		var b strings.Builder
		fmt.Fprintf(&b, "qty=%g reason=%s", p.Qty, p.Reason)
		if p.Error != "" {
			fmt.Fprintf(&b, " error=%s", p.Error)
		}
		for _, l := range p.AllLegs() {
			fmt.Fprintf(&b, "\n%s %s %s/%s order=%s ok=%t", l.Side, l.Venue, l.Category, l.Symbol, l.OrderID, l.Success)
		}
		return title, b.String()
	case domain.MonitoredPair:
		return fmt.Sprintf("pair %s %s", p.ID, ev.Type),
			fmt.Sprintf("executions=%d/%d enabled=%t reason=%s", p.ExecutionsSoFar, p.MaxExecutions, p.Enabled, p.DisabledReason)
	case fmt.Stringer:
		return string(ev.Type), p.String()
	default:
		return string(ev.Type), fmt.Sprintf("%v", ev.Payload)
	}
}
