package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"limscore/pkg/domain"
)

func newTestBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewFromClient(client, time.Second), mr
}

func TestMatchesPatternWildcardRules(t *testing.T) {
	cases := []struct {
		pattern, eventType string
		want               bool
	}{
		{"*", "sample.state_changed", true},
		{"sample.*", "sample.state_changed", true},
		{"sample.*", "job.created", false},
		{"sample.state_changed", "sample.state_changed", true},
		{"sample.state_changed", "sample.placed", false},
	}
	for _, tc := range cases {
		if got := matchesPattern(tc.pattern, tc.eventType); got != tc.want {
			t.Errorf("matchesPattern(%q, %q) = %v, want %v", tc.pattern, tc.eventType, got, tc.want)
		}
	}
}

func TestPublishIncrementsStatsAndReturnsStreamID(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx := context.Background()

	id, err := bus.Publish(ctx, domain.Event{EventType: "sample.placed", Source: "core", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a non-empty stream entry id")
	}
	if stats := bus.Stats(); stats.EventsPublished != 1 {
		t.Fatalf("expected EventsPublished=1, got %+v", stats)
	}
}

func TestRegisterHandlerCountsUniqueNamesOnce(t *testing.T) {
	bus, _ := newTestBus(t)
	h := FuncHandler{HandlerName: "audit", Patterns: []string{"*"}, Fn: func(context.Context, EventContext) error { return nil }}
	bus.RegisterHandler(h)
	bus.RegisterHandler(h)
	if stats := bus.Stats(); stats.HandlersRegistered != 1 {
		t.Fatalf("expected HandlersRegistered=1 after re-registering the same name, got %d", stats.HandlersRegistered)
	}
}

func TestSubscribeDeliversPublishedEventToMatchingHandler(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []domain.Event
	done := make(chan struct{}, 1)

	bus.RegisterHandler(FuncHandler{
		HandlerName: "collector",
		Patterns:    []string{"sample.*"},
		Fn: func(_ context.Context, evt EventContext) error {
			mu.Lock()
			received = append(received, evt.Event)
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	})

	if _, err := bus.Publish(ctx, domain.Event{EventType: "sample.placed", Source: "core", Timestamp: time.Now()}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	sub, err := bus.Subscribe(ctx, SubscriptionConfig{
		GroupName: "test-group", BatchSize: 10, BlockTimeout: 100 * time.Millisecond,
		AutoAck: true, PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for handler delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].EventType != "sample.placed" {
		t.Fatalf("expected one delivered sample.placed event, got %+v", received)
	}
	if stats := bus.Stats(); stats.EventsConsumed != 1 {
		t.Fatalf("expected EventsConsumed=1, got %+v", stats)
	}
}

func TestSubscribeSkipsEventsNotMatchingHandlerPattern(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	called := make(chan struct{}, 1)
	bus.RegisterHandler(FuncHandler{
		HandlerName: "job-only",
		Patterns:    []string{"job.*"},
		Fn: func(context.Context, EventContext) error {
			called <- struct{}{}
			return nil
		},
	})

	if _, err := bus.Publish(ctx, domain.Event{EventType: "sample.placed", Source: "core", Timestamp: time.Now()}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	sub, err := bus.Subscribe(ctx, SubscriptionConfig{
		GroupName: "job-group", BatchSize: 10, BlockTimeout: 50 * time.Millisecond,
		AutoAck: true, PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	select {
	case <-called:
		t.Fatalf("handler for job.* should not receive a sample.placed event")
	case <-time.After(200 * time.Millisecond):
	}
}
