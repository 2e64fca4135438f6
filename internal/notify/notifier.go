// Package notify turns pool lifecycle and settlement events into operator
// alerts. Events from the signal bus are rendered into short messages and
// fanned out to the configured channels (Telegram, Discord), optionally
// filtered by event type.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/resolvd/resolvd/internal/domain"
)

// Notification is a rendered, channel-agnostic message.
type Notification struct {
	Subject string
	Body    string
}

// Sender delivers a rendered notification over one channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
	// Name identifies the channel in logs and error messages.
	Name() string
}

// Notifier renders domain events and fans them out to the configured senders.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// whose type appears in the events slice are forwarded; an empty slice allows
// every renderable event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify renders ev and delivers it to every sender, honoring the event type
// filter. Per-stake events render empty and are dropped; they are too chatty
// for operator channels.
func (n *Notifier) Notify(ctx context.Context, ev domain.Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", ev.Type),
		)
		return nil
	}
	msg, ok := render(ev)
	if !ok {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, msg); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", ev.Type),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("subject", msg.Subject),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// render maps a domain event onto a human-readable notification.
func render(ev domain.Event) (Notification, bool) {
	switch ev.Type {
	case domain.EventPoolCreated:
		return Notification{"Pool created", fmt.Sprintf("pool %s is open for staking", ev.PoolID)}, true
	case domain.EventPoolLocked:
		return Notification{"Pool locked", fmt.Sprintf("pool %s stopped accepting stakes", ev.PoolID)}, true
	case domain.EventPoolResolved:
		return Notification{"Pool resolved", fmt.Sprintf("pool %s resolved to %q", ev.PoolID, ev.Option)}, true
	case domain.EventPoolCancelled:
		return Notification{"Pool cancelled", fmt.Sprintf("pool %s was cancelled; stakes are refundable", ev.PoolID)}, true
	case domain.EventStakeClaimed:
		return Notification{"Payout claimed", fmt.Sprintf("%s claimed %d from pool %s", ev.Participant, ev.Amount, ev.PoolID)}, true
	case domain.EventStakeRefunded:
		return Notification{"Stake refunded", fmt.Sprintf("%s refunded %d from pool %s", ev.Participant, ev.Amount, ev.PoolID)}, true
	}
	return Notification{}, false
}
