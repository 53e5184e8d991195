package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/eventcodec"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

// Router consumes one durable queue per subscribed topic on a single channel.
// nil => Ack; handler error => Nack (requeue per config); undecodable => Ack and alert.
type Router struct {
	ch  *amqp.Channel
	cfg Config

	mu   sync.Mutex
	subs map[string][]domoutbox.Handler
	wg   sync.WaitGroup

	tracer observability.Tracer
	log    observability.Logger
	poison observability.Counter
}

func NewRouter(ch *amqp.Channel, cfg Config, tel observability.Observability) *Router {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 50
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.QueuePrefix == "" {
		cfg.QueuePrefix = "minishop-orders"
	}
	tracer, logger, metrics := observability.Resolve(tel)
	return &Router{
		ch:     ch,
		cfg:    cfg,
		subs:   make(map[string][]domoutbox.Handler),
		tracer: tracer,
		log:    logger.With(observability.F("component", "rabbitmq_router")),
		poison: metrics.Counter(observability.MEventsPoison),
	}
}

func (r *Router) Subscribe(topic string, h domoutbox.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[topic] = append(r.subs[topic], h)
}

func (r *Router) queueName(topic string) string {
	return r.cfg.QueuePrefix + "." + topic
}

// Start declares and binds the queues and begins consuming. It does not block; consumers
// stop when ctx ends or the channel closes.
func (r *Router) Start(ctx context.Context) error {
	if err := declareExchange(r.ch, r.cfg.Exchange); err != nil {
		return err
	}
	if err := r.ch.Qos(r.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq: qos: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for topic := range r.subs {
		queue := r.queueName(topic)
		if _, err := r.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbitmq: declare queue %s: %w", queue, err)
		}
		if err := r.ch.QueueBind(queue, topic, r.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("rabbitmq: bind queue %s: %w", queue, err)
		}
		deliveries, err := r.ch.ConsumeWithContext(ctx, queue, "c_"+queue,
			false, // manual ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("rabbitmq: consume %s: %w", queue, err)
		}

		r.wg.Add(1)
		go r.consume(ctx, queue, deliveries)
	}
	r.log.Info("consumer_started", observability.F("queues", len(r.subs)))
	return nil
}

// Wait blocks until every consumer goroutine has exited.
func (r *Router) Wait() {
	r.wg.Wait()
}

func (r *Router) consume(ctx context.Context, queue string, deliveries <-chan amqp.Delivery) {
	defer r.wg.Done()
	for d := range deliveries {
		r.handleDelivery(ctx, d)
	}
	r.log.Info("consumer_stopped", observability.F("queue", queue))
}

func (r *Router) handleDelivery(ctx context.Context, d amqp.Delivery) {
	err := r.dispatch(ctx, d)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, eventcodec.ErrPoison):
		_ = d.Ack(false)
	default:
		r.log.Warn("event_not_acked",
			observability.F("routing_key", d.RoutingKey),
			observability.F("requeue", r.cfg.Requeue),
			observability.F("error", err.Error()),
		)
		_ = d.Nack(false, r.cfg.Requeue)
	}
}

func (r *Router) dispatch(ctx context.Context, d amqp.Delivery) error {
	carrier := propagation.MapCarrier{}
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "Consume "+d.RoutingKey,
		attribute.String("messaging.system", "rabbitmq"),
		attribute.String("messaging.destination.name", d.RoutingKey),
	)
	defer span.End()

	ctx, logger := logctx.Enrich(ctx, r.log,
		observability.F("topic", d.RoutingKey),
		observability.F("event_id", d.MessageId),
	)

	e, err := eventcodec.Decode(d.RoutingKey, d.Body)
	if err != nil {
		span.SetStatus(codes.Error, "POISON")
		r.poison.Add(1, observability.L("topic", d.RoutingKey))
		logger.Error("event_poison",
			observability.F("error", err.Error()),
			observability.F("operator_alert", true),
		)
		return fmt.Errorf("%w: %w", eventcodec.ErrPoison, err)
	}

	r.mu.Lock()
	handlers := append([]domoutbox.Handler(nil), r.subs[d.RoutingKey]...)
	r.mu.Unlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "HANDLER_ERROR")
			return err
		}
	}
	span.SetStatus(codes.Ok, "OK")
	return nil
}
