package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

func evt(topic string) domorder.Event {
	return domorder.Event{Topic: topic, ID: "e-1", OrderID: 1}
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(observability.Nop())
	got := make(chan domoutbox.Event, 2)
	bus.Subscribe(domorder.TopicCreated, func(_ context.Context, e domoutbox.Event) error {
		got <- e
		return nil
	})
	bus.Start(context.Background())

	require.NoError(t, bus.Publish(context.Background(), evt(domorder.TopicCreated)))
	require.NoError(t, bus.Publish(context.Background(), evt(domorder.TopicPaid)))
	require.NoError(t, bus.Stop(context.Background()))

	require.Len(t, got, 1)
	require.Equal(t, domorder.TopicCreated, (<-got).EventName())
}

func TestBusRedeliversUntilAck(t *testing.T) {
	bus := NewBus(observability.Nop(), WithMaxAttempts(3))
	var calls atomic.Int32
	bus.Subscribe(domorder.TopicCreated, func(context.Context, domoutbox.Event) error {
		if calls.Add(1) < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	bus.Start(context.Background())

	require.NoError(t, bus.Publish(context.Background(), evt(domorder.TopicCreated)))
	require.NoError(t, bus.Stop(context.Background()))
	require.Equal(t, int32(3), calls.Load())
}

func TestBusRecoversHandlerPanic(t *testing.T) {
	bus := NewBus(observability.Nop(), WithMaxAttempts(2))
	var calls atomic.Int32
	bus.Subscribe(domorder.TopicCreated, func(context.Context, domoutbox.Event) error {
		calls.Add(1)
		panic("boom")
	})
	bus.Start(context.Background())

	require.NoError(t, bus.Publish(context.Background(), evt(domorder.TopicCreated)))
	require.NoError(t, bus.Stop(context.Background()))
	require.Equal(t, int32(2), calls.Load())
}

func TestBusRejectsPublishAfterStop(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))

	require.ErrorIs(t, bus.Publish(context.Background(), evt(domorder.TopicCreated)), ErrBusClosed)
}
