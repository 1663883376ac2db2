package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"limscore/internal/eventbus"
)

// TestServicePublishesDomainEventsThroughEventBus wires core.Service's
// EventPublisher seam to a real eventbus.Bus backed by miniredis, proving
// that commits actually reach the Redis Streams bus rather than the noop
// default.
func TestServicePublishesDomainEventsThroughEventBus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	bus := eventbus.NewFromClient(client, time.Second)

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 1)
	bus.RegisterHandler(eventbus.FuncHandler{
		HandlerName: "test-sink",
		Patterns:    []string{"sample.*"},
		Fn: func(_ context.Context, evt eventbus.EventContext) error {
			mu.Lock()
			seen = append(seen, evt.Event.EventType)
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
			return nil
		},
	})

	svc := NewInMemoryService(NewDefaultRulesEngine(), WithClock(ClockFunc(fixedNow)), WithEventPublisher(eventbus.Publisher{Bus: bus}))
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, eventbus.SubscriptionConfig{
		GroupName: "core-sink", BatchSize: 10, BlockTimeout: 100 * time.Millisecond,
		AutoAck: true, PollInterval: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	if _, _, err := svc.CreateSample(ctx, Sample{Name: "S1", Barcode: "LAB-BUS0000001"}, MintOptions{}); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	_, positions := seedBox(t, svc)
	sample2, _, err := svc.CreateSample(ctx, Sample{Name: "S2", Barcode: "LAB-BUS0000002"}, MintOptions{})
	if err != nil {
		t.Fatalf("create sample 2: %v", err)
	}
	if _, _, err := svc.AssignSample(ctx, sample2.ID, positions[0], "tech1", nil); err != nil {
		t.Fatalf("assign: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for sample.placed to reach the bus")
	}

	mu.Lock()
	defer mu.Unlock()
	found := false
	for _, eventType := range seen {
		if eventType == "sample.placed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected sample.placed among delivered events, got %v", seen)
	}
}
