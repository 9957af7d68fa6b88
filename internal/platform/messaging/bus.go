package messaging

import (
	"context"
	"log/slog"
	"sync"

	"key2key/contexts/marketplace/listing-settlement/ports"
)

// Bus is the in-process event bus used when no broker is configured.
// Every consumer group bound to a topic receives each event once; members of
// the same group share the stream round robin. Publish never blocks on a
// slow member: the event is handed to the next member with room or dropped,
// and the outbox relay's at-least-once contract covers the gap on restart.
type Bus struct {
	mu         sync.RWMutex
	groups     map[string]map[string]*consumerGroup
	bufferSize int
	logger     *slog.Logger
}

type consumerGroup struct {
	members []chan ports.EventEnvelope
	next    int
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		groups:     make(map[string]map[string]*consumerGroup),
		bufferSize: 128,
		logger:     logger,
	}
}

func (b *Bus) Publish(ctx context.Context, topic string, event ports.EventEnvelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for name, group := range b.groups[topic] {
		if !group.offer(event) {
			b.log(slog.LevelWarn, "event dropped, consumer group saturated", "bus_publish_drop",
				"topic", topic,
				"consumer_group", name,
				"event_id", event.EventID,
			)
		}
	}
	b.log(slog.LevelDebug, "event published", "bus_publish",
		"topic", topic,
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
	)
	return nil
}

// offer hands the event to the first member with buffer room, starting at
// the round-robin cursor.
func (g *consumerGroup) offer(event ports.EventEnvelope) bool {
	for i := 0; i < len(g.members); i++ {
		idx := (g.next + i) % len(g.members)
		select {
		case g.members[idx] <- event:
			g.next = (idx + 1) % len(g.members)
			return true
		default:
		}
	}
	return false
}

func (b *Bus) Subscribe(
	ctx context.Context,
	topic string,
	consumerGroup string,
	handler func(context.Context, ports.EventEnvelope) error,
) error {
	inbox := make(chan ports.EventEnvelope, b.bufferSize)
	b.join(topic, consumerGroup, inbox)

	go func() {
		defer b.leave(topic, consumerGroup, inbox)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-inbox:
				if err := handler(ctx, event); err != nil {
					b.log(slog.LevelError, "consumer handler failed", "bus_consume_failed",
						"topic", topic,
						"consumer_group", consumerGroup,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

// Members reports live members of a consumer group on a topic.
func (b *Bus) Members(topic, consumerGroup string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	group, ok := b.groups[topic][consumerGroup]
	if !ok {
		return 0
	}
	return len(group.members)
}

func (b *Bus) join(topic, name string, inbox chan ports.EventEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.groups[topic] == nil {
		b.groups[topic] = make(map[string]*consumerGroup)
	}
	group, ok := b.groups[topic][name]
	if !ok {
		group = &consumerGroup{}
		b.groups[topic][name] = group
	}
	group.members = append(group.members, inbox)
}

func (b *Bus) leave(topic, name string, inbox chan ports.EventEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	group, ok := b.groups[topic][name]
	if !ok {
		return
	}
	kept := group.members[:0]
	for _, member := range group.members {
		if member != inbox {
			kept = append(kept, member)
		}
	}
	group.members = kept
	group.next = 0
	if len(kept) == 0 {
		delete(b.groups[topic], name)
	}
}

func (b *Bus) log(level slog.Level, msg, event string, attrs ...any) {
	if b.logger == nil {
		return
	}
	base := []any{
		"event", event,
		"module", "internal/platform/messaging",
		"layer", "platform",
	}
	b.logger.Log(context.Background(), level, msg, append(base, attrs...)...)
}
