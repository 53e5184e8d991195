package workerpresentation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

// WithEventContext injects an event-scoped logger for a consumer handler.
// Dynamic fields only: event_id (generated if empty), trace_id/span_id when valid,
// plus caller-provided low-cardinality attributes (e.g. "topic", "consumer").
func WithEventContext(
	ctx context.Context,
	base observability.Logger,
	eventID string,
	attrs map[string]string,
) context.Context {
	if eventID == "" {
		eventID = uuid.NewString()
	}
	fields := make([]observability.Field, 0, len(attrs)+3)
	fields = append(fields, observability.F("event_id", eventID))

	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	for k, v := range attrs {
		if k == "event_id" || v == "" {
			continue
		}
		fields = append(fields, observability.F(k, v))
	}
	return logctx.With(ctx, logctx.FromOr(ctx, base).With(fields...))
}

// Subscriber decorates a transport subscriber so every handler runs with an event-scoped
// logger and a panic becomes an error (the delivery is then not acknowledged).
type Subscriber struct {
	next     domoutbox.Subscriber
	consumer string
	log      observability.Logger
}

func NewSubscriber(next domoutbox.Subscriber, consumer string, tel observability.Observability) *Subscriber {
	_, logger, _ := observability.Resolve(tel)
	return &Subscriber{next: next, consumer: consumer, log: logger}
}

func (s *Subscriber) Subscribe(topic string, h domoutbox.Handler) {
	s.next.Subscribe(topic, func(ctx context.Context, e domoutbox.Event) (err error) {
		ctx = WithEventContext(ctx, s.log, domoutbox.IDOf(e), map[string]string{
			"topic":    topic,
			"consumer": s.consumer,
		})
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("workerpresentation: handler panic on %s: %v", topic, rec)
				logctx.FromOr(ctx, s.log).Error("event_handler_panic",
					observability.F("panic", fmt.Sprint(rec)),
					observability.F("operator_alert", true),
				)
			}
		}()
		return h(ctx, e)
	})
}
