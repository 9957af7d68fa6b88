package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversOncePerConsumerGroup(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var notifications, audit atomic.Int32
	counter := func(n *atomic.Int32) func(context.Context, ports.EventEnvelope) error {
		return func(context.Context, ports.EventEnvelope) error {
			n.Add(1)
			return nil
		}
	}
	require.NoError(t, bus.Subscribe(ctx, "settlement.events", "notifications", counter(&notifications)))
	require.NoError(t, bus.Subscribe(ctx, "settlement.events", "notifications", counter(&notifications)))
	require.NoError(t, bus.Subscribe(ctx, "settlement.events", "audit-export", counter(&audit)))
	assert.Equal(t, 2, bus.Members("settlement.events", "notifications"))

	for _, id := range []string{"evt-1", "evt-2", "evt-3"} {
		require.NoError(t, bus.Publish(ctx, "settlement.events", ports.EventEnvelope{EventID: id}))
	}

	require.Eventually(t, func() bool {
		return notifications.Load() == 3 && audit.Load() == 3
	}, time.Second, 5*time.Millisecond)
}

func TestBusHandlerErrorDoesNotStopConsumer(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 2)
	require.NoError(t, bus.Subscribe(ctx, "topic", "cg", func(_ context.Context, event ports.EventEnvelope) error {
		received <- event.EventID
		return errors.New("notifier down")
	}))

	require.NoError(t, bus.Publish(ctx, "topic", ports.EventEnvelope{EventID: "a"}))
	require.NoError(t, bus.Publish(ctx, "topic", ports.EventEnvelope{EventID: "b"}))

	for _, want := range []string{"a", "b"} {
		select {
		case got := <-received:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("event %s was not delivered", want)
		}
	}
}

func TestBusMemberLeavesOnCancel(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.Subscribe(ctx, "topic", "cg", func(context.Context, ports.EventEnvelope) error { return nil }))
	require.Equal(t, 1, bus.Members("topic", "cg"))

	cancel()
	require.Eventually(t, func() bool { return bus.Members("topic", "cg") == 0 }, time.Second, 5*time.Millisecond)
}

func TestBusPublishHonoursCancelledContext(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, bus.Publish(ctx, "topic", ports.EventEnvelope{EventID: "a"}), context.Canceled)
}
