package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const workerService = "order-payment-worker"

type paymentUseCase = application.UseCase[PaymentOutcomeInput, *PaymentOutcomeResult]

// PaymentWorker maps payment outcome topics onto order commands, one handler per topic.
type PaymentWorker struct {
	subscriber domoutbox.Subscriber
	markPaid   paymentUseCase
	cancel     paymentUseCase

	log          observability.Logger
	consumed     observability.Counter   // event_consume_total{topic,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
}

func NewPaymentWorker(
	subscriber domoutbox.Subscriber,
	markPaid paymentUseCase,
	cancel paymentUseCase,
	tel observability.Observability,
) *PaymentWorker {
	_, logger, metrics := observability.Resolve(tel)
	return &PaymentWorker{
		subscriber:   subscriber,
		markPaid:     markPaid,
		cancel:       cancel,
		log:          logger.With(observability.F("service", workerService)),
		consumed:     metrics.Counter(observability.MEventsConsumed),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
	}
}

// Topics lists what Start subscribes to, for transports that must declare them up front.
func (w *PaymentWorker) Topics() []string {
	return []string{dompayment.TopicSucceeded, dompayment.TopicFailed}
}

func (w *PaymentWorker) Start() {
	if w.subscriber == nil {
		return
	}
	w.subscriber.Subscribe(dompayment.TopicSucceeded, w.HandlePaymentSucceeded)
	w.subscriber.Subscribe(dompayment.TopicFailed, w.HandlePaymentFailed)
}

func (w *PaymentWorker) HandlePaymentSucceeded(ctx context.Context, e domoutbox.Event) error {
	return w.handle(ctx, e, "order.worker.payment_succeeded", w.markPaid)
}

func (w *PaymentWorker) HandlePaymentFailed(ctx context.Context, e domoutbox.Event) error {
	return w.handle(ctx, e, "order.worker.payment_failed", w.cancel)
}

func (w *PaymentWorker) handle(ctx context.Context, e domoutbox.Event, useCase string, uc paymentUseCase) error {
	topic := e.EventName()
	evt, ok := e.(dompayment.OutcomeEvent)
	if !ok {
		w.count(topic, "ignored")
		logctx.FromOr(ctx, w.log).Warn("event_unexpected_type",
			observability.F("event", topic),
			observability.F("type", fmt.Sprintf("%T", e)),
		)
		return nil
	}

	ctx, logger := logctx.Enrich(ctx, w.log,
		observability.F("use_case", useCase),
		observability.F("event", topic),
		observability.F("order_id", evt.OrderID),
	)
	start := time.Now()

	res, err := uc.Execute(ctx, PaymentOutcomeInput{OrderID: evt.OrderID})
	w.durHistogram.Observe(time.Since(start).Seconds(), observability.L("use_case", useCase))

	switch {
	case err == nil:
		outcome := "applied"
		if !res.Applied {
			outcome = "absorbed"
		}
		w.count(topic, outcome)
		logger.Info("event_handled",
			observability.F("outcome", outcome),
			observability.F("reason", res.Reason),
			observability.F("status", string(res.Status)),
		)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		// The order is not ours or was never committed; redelivery cannot fix that.
		w.count(topic, "absorbed")
		logger.Warn("event_order_unknown", observability.F("error", err.Error()))
		return nil
	case errors.Is(err, ErrCatalogCorrupted):
		w.count(topic, "error")
		logger.Error("event_handler_error",
			observability.F("error", err.Error()),
			observability.F("operator_alert", true),
		)
		return err
	default:
		w.count(topic, "error")
		logger.Error("event_handler_error", observability.F("error", err.Error()))
		return err
	}
}

func (w *PaymentWorker) count(topic, outcome string) {
	w.consumed.Add(1,
		observability.L("topic", topic),
		observability.L("outcome", outcome),
	)
}
