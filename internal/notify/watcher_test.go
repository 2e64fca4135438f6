package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/resolvd/resolvd/internal/domain"
)

// chanBus is a minimal in-process signal bus for watcher tests.
type chanBus struct {
	channels map[string]chan []byte
}

func newChanBus(names ...string) *chanBus {
	b := &chanBus{channels: make(map[string]chan []byte)}
	for _, name := range names {
		b.channels[name] = make(chan []byte, 16)
	}
	return b
}

func (b *chanBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.channels[channel] <- payload
	return nil
}

func (b *chanBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return b.channels[channel], nil
}

func (b *chanBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return nil
}

func (b *chanBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// recordSender captures delivered notifications.
type recordSender struct {
	titles chan string
}

func (s *recordSender) Send(ctx context.Context, n Notification) error {
	s.titles <- n.Subject
	return nil
}

func (s *recordSender) Name() string { return "record" }

func TestWatcherForwardsEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newChanBus(domain.ChannelPool, domain.ChannelSettlement)
	sender := &recordSender{titles: make(chan string, 16)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := NewNotifier([]Sender{sender}, nil, logger)

	w := NewWatcher(bus, notifier, logger)
	go w.Run(ctx)

	publish := func(channel string, ev domain.Event) {
		t.Helper()
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal event: %v", err)
		}
		if err := bus.Publish(ctx, channel, data); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	publish(domain.ChannelPool, domain.Event{Type: domain.EventPoolResolved, PoolID: "pool-1", Option: "yes"})
	publish(domain.ChannelSettlement, domain.Event{Type: domain.EventStakeClaimed, PoolID: "pool-1", Participant: "alice", Amount: 300})

	want := []string{"Pool resolved", "Payout claimed"}
	for _, title := range want {
		select {
		case got := <-sender.titles:
			if got != title {
				t.Errorf("title = %q, want %q", got, title)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", title)
		}
	}
}

func TestWatcherRespectsEventFilter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := newChanBus(domain.ChannelPool, domain.ChannelSettlement)
	sender := &recordSender{titles: make(chan string, 16)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	notifier := NewNotifier([]Sender{sender}, []string{domain.EventPoolResolved}, logger)

	w := NewWatcher(bus, notifier, logger)
	go w.Run(ctx)

	filtered, _ := json.Marshal(domain.Event{Type: domain.EventPoolCreated, PoolID: "pool-1"})
	allowed, _ := json.Marshal(domain.Event{Type: domain.EventPoolResolved, PoolID: "pool-1", Option: "no"})
	bus.Publish(ctx, domain.ChannelPool, filtered)
	bus.Publish(ctx, domain.ChannelPool, allowed)

	select {
	case got := <-sender.titles:
		if got != "Pool resolved" {
			t.Errorf("title = %q, want only the resolved event", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for resolved notification")
	}

	select {
	case got := <-sender.titles:
		t.Errorf("unexpected extra notification %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}
