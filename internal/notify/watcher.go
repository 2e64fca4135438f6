package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/resolvd/resolvd/internal/domain"
)

// Watcher subscribes to the signal bus and forwards pool lifecycle and
// settlement events to the notifier, so operators hear about resolutions and
// payouts without polling the API.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher over the given bus and notifier.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger,
	}
}

// Run subscribes to the pool and settlement channels and dispatches
// notifications until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	poolCh, err := w.bus.Subscribe(ctx, domain.ChannelPool)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelPool, err)
	}
	settleCh, err := w.bus.Subscribe(ctx, domain.ChannelSettlement)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelSettlement, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-poolCh:
			if !ok {
				return nil
			}
			w.handle(ctx, data)
		case data, ok := <-settleCh:
			if !ok {
				return nil
			}
			w.handle(ctx, data)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, data []byte) {
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		w.logger.WarnContext(ctx, "notify: bad event payload",
			slog.String("error", err.Error()),
		)
		return
	}

	if err := w.notifier.Notify(ctx, ev); err != nil {
		w.logger.WarnContext(ctx, "notify: dispatch failed",
			slog.String("event", ev.Type),
			slog.String("error", err.Error()),
		)
	}
}
