// Package eventbus implements C7: a Redis Streams-backed event bus with
// consumer-group subscriptions, wildcard pattern matching, and at-least-once
// delivery via explicit acknowledgement. It is grounded on
// _examples/original_source/event_service/src/services/event_bus.rs (the
// publish/register_handler/subscribe/stats contract and its stream naming
// and pattern-matching rules) and adopts the Go client idiom from
// _examples/pithecene-io-quarry/quarry/adapter/redis (go-redis/v9
// construction, retry/backoff shape, Config struct).
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"limscore/pkg/domain"
)

const streamPrefix = "tracseq:events:"

// streamName derives the Redis stream key for an event type, replacing the
// dotted segments with colons as the original Rust bus does.
func streamName(eventType string) string {
	return streamPrefix + strings.ReplaceAll(eventType, ".", ":")
}

// Config configures a Bus's connection to Redis.
type Config struct {
	URL          string
	DialTimeout  time.Duration
	DefaultBlock time.Duration
}

// Stats mirrors the Rust EventBusStats: running counters exposed via
// stats(). Guarded by Bus.statsMu, per spec.md §5's requirement that the
// publish path only take the stats write lock.
type Stats struct {
	EventsPublished    uint64
	EventsConsumed     uint64
	EventsFailed       uint64
	HandlersRegistered uint64
}

// EventContext is passed to a Handler for each delivered stream entry.
type EventContext struct {
	Event         domain.Event
	StreamID      string
	ConsumerGroup string
	DeliveryCount int
}

// Handler processes events whose type matches one of its declared patterns.
// Patterns follow the bus's wildcard rule: "*" matches any substring,
// dots included, via matchesPattern.
type Handler interface {
	Name() string
	EventTypes() []string
	Priority() int
	MaxRetries() int
	Timeout() time.Duration
	Handle(ctx context.Context, evt EventContext) error
}

// Bus is a Redis Streams-backed implementation of C7. The zero value is not
// usable; construct with New or NewFromClient.
type Bus struct {
	client *goredis.Client

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	statsMu sync.RWMutex
	stats   Stats

	streamsMu sync.Mutex
	streams   map[string]struct{}

	defaultBlock time.Duration
}

// New constructs a Bus against a Redis instance reachable at cfg.URL,
// pinging it once to fail fast on misconfiguration, per the Rust
// constructor's behavior.
func New(ctx context.Context, cfg Config) (*Bus, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("eventbus: URL is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("eventbus: ping redis: %w", err)
	}
	block := cfg.DefaultBlock
	if block <= 0 {
		block = 5 * time.Second
	}
	return NewFromClient(client, block), nil
}

// NewFromClient wraps an existing go-redis client, letting tests inject a
// miniredis-backed client without dialing a real network connection.
func NewFromClient(client *goredis.Client, defaultBlock time.Duration) *Bus {
	if defaultBlock <= 0 {
		defaultBlock = 5 * time.Second
	}
	return &Bus{
		client:       client,
		handlers:     make(map[string]Handler),
		streams:      make(map[string]struct{}),
		defaultBlock: defaultBlock,
	}
}

// Close releases the underlying Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}

// Publish implements C7's publish(event) -> StreamEntryId: it XADDs the
// event to its type's stream and returns the server-assigned, monotonically
// increasing entry id.
func (b *Bus) Publish(ctx context.Context, event domain.Event) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("eventbus: marshal event: %w", err)
	}
	stream := streamName(event.EventType)
	id, err := b.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"event": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("eventbus: publish to %s: %w", stream, err)
	}
	b.streamsMu.Lock()
	b.streams[stream] = struct{}{}
	b.streamsMu.Unlock()

	b.statsMu.Lock()
	b.stats.EventsPublished++
	b.statsMu.Unlock()
	return id, nil
}

// RegisterHandler adds a handler to the registry, keyed by name as the
// original bus does; re-registering a name replaces the prior handler
// without double-counting HandlersRegistered.
func (b *Bus) RegisterHandler(h Handler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	if _, exists := b.handlers[h.Name()]; !exists {
		b.statsMu.Lock()
		b.stats.HandlersRegistered++
		b.statsMu.Unlock()
	}
	b.handlers[h.Name()] = h
}

// Stats returns a snapshot of the bus's running counters.
func (b *Bus) Stats() Stats {
	b.statsMu.RLock()
	defer b.statsMu.RUnlock()
	return b.stats
}

// matchesPattern implements C7's wildcard rule: "*" alone matches every
// event type; a pattern containing "*" is compiled into an anchored regex
// with "*" expanded to ".*"; anything else is an exact match.
func matchesPattern(pattern, eventType string) bool {
	if pattern == "*" {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return pattern == eventType
	}
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	re, err := regexp.Compile("^" + escaped + "$")
	if err != nil {
		return false
	}
	return re.MatchString(eventType)
}

// SubscriptionConfig configures a background consumer group per spec.md
// §4.7: a group partitions work across consumers reading the same streams,
// while independent groups each receive every entry.
type SubscriptionConfig struct {
	GroupName    string
	ConsumerName string
	BatchSize    int64
	BlockTimeout time.Duration
	AutoAck      bool
	PollInterval time.Duration
}

// Subscription is a live background consumer started by Subscribe. Cancel
// lets the in-flight entry finish before the consumer loop exits, per
// spec.md §5's cancellation contract.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the subscription's consumer loop and blocks until the
// in-flight batch, if any, finishes processing.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

func defaultSubscriptionConfig(cfg SubscriptionConfig) SubscriptionConfig {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = cfg.GroupName + "-consumer-1"
	}
	return cfg
}

// Subscribe creates a consumer group on every stream whose event type
// matches a registered handler's pattern, then starts one background
// goroutine that, each poll, reads a batch from every matching stream via
// XREADGROUP (one errgroup goroutine per stream), applies every matching
// handler, and acks entries every handler processed without error. Handlers
// are not ordered by Priority; their order is not defined. New streams that appear after Subscribe starts
// (because a not-yet-seen event type is published) are picked up on the
// next poll interval.
func (b *Bus) Subscribe(ctx context.Context, cfg SubscriptionConfig) (*Subscription, error) {
	if cfg.GroupName == "" {
		return nil, fmt.Errorf("eventbus: subscription group name is required")
	}
	cfg = defaultSubscriptionConfig(cfg)

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go b.consumeLoop(subCtx, cfg, done)
	return &Subscription{cancel: cancel, done: done}, nil
}

func (b *Bus) consumeLoop(ctx context.Context, cfg SubscriptionConfig, done chan struct{}) {
	defer close(done)
	knownGroups := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		matched := b.matchingStreams()
		group, _ := errgroup.WithContext(ctx)
		for _, stream := range matched {
			stream := stream
			if _, ok := knownGroups[stream]; !ok {
				if err := b.createConsumerGroup(ctx, stream, cfg.GroupName); err != nil {
					continue
				}
				knownGroups[stream] = struct{}{}
			}
			group.Go(func() error {
				b.consumeStream(ctx, stream, cfg)
				return nil
			})
		}
		_ = group.Wait()

		select {
		case <-ctx.Done():
			return
		case <-time.After(cfg.PollInterval):
		}
	}
}

func (b *Bus) matchingStreams() []string {
	b.handlersMu.RLock()
	patterns := make([]string, 0, len(b.handlers))
	for _, h := range b.handlers {
		patterns = append(patterns, h.EventTypes()...)
	}
	b.handlersMu.RUnlock()

	b.streamsMu.Lock()
	defer b.streamsMu.Unlock()
	var matched []string
	for stream := range b.streams {
		eventType := strings.TrimPrefix(stream, streamPrefix)
		eventType = strings.ReplaceAll(eventType, ":", ".")
		for _, p := range patterns {
			if matchesPattern(p, eventType) {
				matched = append(matched, stream)
				break
			}
		}
	}
	return matched
}

// createConsumerGroup creates (stream, group) starting from the beginning of
// the stream, ignoring the BUSYGROUP error raised when it already exists.
func (b *Bus) createConsumerGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (b *Bus) consumeStream(ctx context.Context, stream string, cfg SubscriptionConfig) {
	res, err := b.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
		Group:    cfg.GroupName,
		Consumer: cfg.ConsumerName,
		Streams:  []string{stream, ">"},
		Count:    cfg.BatchSize,
		Block:    cfg.BlockTimeout,
	}).Result()
	if err != nil {
		if err == goredis.Nil {
			return
		}
		// Broker read error: back off 1s and let the outer poll loop retry.
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
		return
	}
	for _, xs := range res {
		for _, msg := range xs.Messages {
			b.processMessage(ctx, stream, cfg, msg)
		}
	}
}

func (b *Bus) processMessage(ctx context.Context, stream string, cfg SubscriptionConfig, msg goredis.XMessage) {
	raw, _ := msg.Values["event"].(string)
	var event domain.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		b.statsMu.Lock()
		b.stats.EventsFailed++
		b.statsMu.Unlock()
		if cfg.AutoAck {
			b.client.XAck(ctx, stream, cfg.GroupName, msg.ID)
		}
		return
	}

	deliveryCount := 1
	if count, err := b.client.XPendingExt(ctx, &goredis.XPendingExtArgs{
		Stream: stream, Group: cfg.GroupName, Start: msg.ID, End: msg.ID, Count: 1,
	}).Result(); err == nil && len(count) == 1 {
		deliveryCount = int(count[0].RetryCount) + 1
	}

	evtCtx := EventContext{Event: event, StreamID: msg.ID, ConsumerGroup: cfg.GroupName, DeliveryCount: deliveryCount}

	handled := false
	failed := false
	for _, h := range b.matchingHandlers(event.EventType) {
		hCtx := ctx
		var hCancel context.CancelFunc
		if t := h.Timeout(); t > 0 {
			hCtx, hCancel = context.WithTimeout(ctx, t)
		}
		err := h.Handle(hCtx, evtCtx)
		if hCancel != nil {
			hCancel()
		}
		if err != nil {
			failed = true
			continue
		}
		handled = true
	}

	b.statsMu.Lock()
	if handled {
		b.stats.EventsConsumed++
	}
	if failed {
		b.stats.EventsFailed++
	}
	b.statsMu.Unlock()

	if !failed && cfg.AutoAck {
		b.client.XAck(ctx, stream, cfg.GroupName, msg.ID)
	}
}

func (b *Bus) matchingHandlers(eventType string) []Handler {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()
	var matched []Handler
	for _, h := range b.handlers {
		for _, p := range h.EventTypes() {
			if matchesPattern(p, eventType) {
				matched = append(matched, h)
				break
			}
		}
	}
	return matched
}
