package workerpresentation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	infraobs "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

type subscriptions map[string]domoutbox.Handler

func (s subscriptions) Subscribe(topic string, h domoutbox.Handler) { s[topic] = h }

func TestSubscriberScopesLoggerToEvent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tel := infraobs.New(nil, zaplogger.Wrap(zap.New(core)), nil, nil)

	inner := subscriptions{}
	sub := NewSubscriber(inner, "order-feed", tel)
	sub.Subscribe(domorder.TopicPaid, func(ctx context.Context, _ domoutbox.Event) error {
		logctx.FromOr(ctx, nil).Info("handled")
		return nil
	})

	err := inner[domorder.TopicPaid](context.Background(), domorder.Event{Topic: domorder.TopicPaid, ID: "e-9", OrderID: 1})
	require.NoError(t, err)

	entries := logs.FilterMessage("handled").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "e-9", fields["event_id"])
	require.Equal(t, domorder.TopicPaid, fields["topic"])
	require.Equal(t, "order-feed", fields["consumer"])
}

func TestSubscriberTurnsPanicIntoError(t *testing.T) {
	inner := subscriptions{}
	sub := NewSubscriber(inner, "payments", nil)
	sub.Subscribe(domorder.TopicPaid, func(context.Context, domoutbox.Event) error {
		panic("boom")
	})

	err := inner[domorder.TopicPaid](context.Background(), domorder.Event{Topic: domorder.TopicPaid})
	require.ErrorContains(t, err, "boom")
}

func TestWithEventContextGeneratesID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zaplogger.Wrap(zap.New(core))

	ctx := WithEventContext(context.Background(), base, "", nil)
	logctx.FromOr(ctx, observability.NopLogger()).Info("x")

	require.NotEmpty(t, logs.All()[0].ContextMap()["event_id"])
}
