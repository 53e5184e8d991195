package feed

import (
	"context"
	"fmt"
	"strconv"

	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const claimScope = "order-feed"

type Worker struct {
	subscriber domoutbox.Subscriber
	claims     ClaimStore
	store      Store

	log      observability.Logger
	consumed observability.Counter // event_consume_total{topic,outcome}
}

func NewWorker(subscriber domoutbox.Subscriber, claims ClaimStore, store Store, tel observability.Observability) *Worker {
	_, logger, metrics := observability.Resolve(tel)
	return &Worker{
		subscriber: subscriber,
		claims:     claims,
		store:      store,
		log:        logger.With(observability.F("service", "order-feed-worker")),
		consumed:   metrics.Counter(observability.MEventsConsumed),
	}
}

func (w *Worker) Topics() []string {
	return domorder.Topics()
}

func (w *Worker) Start() {
	if w.subscriber == nil {
		return
	}
	for _, topic := range w.Topics() {
		w.subscriber.Subscribe(topic, w.Handle)
	}
}

// Handle appends the event to its order's timeline once per event id.
func (w *Worker) Handle(ctx context.Context, e domoutbox.Event) error {
	topic := e.EventName()
	evt, ok := e.(domorder.Event)
	if !ok {
		w.count(topic, "ignored")
		logctx.FromOr(ctx, w.log).Warn("event_unexpected_type",
			observability.F("event", topic),
			observability.F("type", fmt.Sprintf("%T", e)),
		)
		return nil
	}

	key := dedupeKey(evt)
	ctx, logger := logctx.Enrich(ctx, w.log,
		observability.F("event", topic),
		observability.F("event_id", key),
		observability.F("order_id", evt.OrderID),
	)

	claimed, err := w.claims.Claim(ctx, claimScope, key)
	if err != nil {
		w.count(topic, "error")
		logger.Error("event_handler_error", observability.F("error", err.Error()))
		return err
	}
	if !claimed {
		w.count(topic, "duplicate")
		logger.Info("event_duplicate")
		return nil
	}

	entry := Entry{
		EventID:    key,
		Topic:      topic,
		OrderID:    evt.OrderID,
		Status:     evt.Status,
		OccurredAt: evt.OccurredAt,
	}
	if err := w.store.Append(ctx, entry); err != nil {
		if relErr := w.claims.Release(ctx, claimScope, key); relErr != nil {
			logger.Warn("claim_release_failed", observability.F("error", relErr.Error()))
		}
		w.count(topic, "error")
		logger.Error("event_handler_error", observability.F("error", err.Error()))
		return fmt.Errorf("feed: append %s: %w", key, err)
	}

	w.count(topic, "applied")
	logger.Info("event_handled", observability.F("status", string(evt.Status)))
	return nil
}

// dedupeKey falls back to topic/order/time for producers that omit eventId.
func dedupeKey(e domorder.Event) string {
	if e.ID != "" {
		return e.ID
	}
	return e.Topic + ":" + strconv.FormatInt(e.OrderID, 10) + ":" + strconv.FormatInt(e.OccurredAt.UnixNano(), 10)
}

func (w *Worker) count(topic, outcome string) {
	w.consumed.Add(1,
		observability.L("topic", topic),
		observability.L("outcome", outcome),
	)
}
