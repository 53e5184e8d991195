package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/eventcodec"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

const rejoinBackoff = time.Second

// Subscriber consumes the subscribed topics through one consumer group. A message is marked
// when its handlers succeed or when it can never be decoded. A handler error ends the
// session without marking, so the group resumes from the last marked offset and the
// message is delivered again.
type Subscriber struct {
	group sarama.ConsumerGroup

	mu       sync.RWMutex
	handlers map[string][]domoutbox.Handler

	tracer observability.Tracer
	log    observability.Logger
	poison observability.Counter // event_consume_poison_total{topic}
}

func NewSubscriber(group sarama.ConsumerGroup, tel observability.Observability) *Subscriber {
	tracer, logger, metrics := observability.Resolve(tel)
	return &Subscriber{
		group:    group,
		handlers: make(map[string][]domoutbox.Handler),
		tracer:   tracer,
		log:      logger.With(observability.F("component", "kafka_subscriber")),
		poison:   metrics.Counter(observability.MEventsPoison),
	}
}

func (s *Subscriber) Subscribe(topic string, h domoutbox.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[topic] = append(s.handlers[topic], h)
}

func (s *Subscriber) topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.handlers))
	for t := range s.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Run blocks consuming until ctx ends. Subscribe must be called before Run.
func (s *Subscriber) Run(ctx context.Context) error {
	topics := s.topics()
	if len(topics) == 0 {
		return errors.New("kafka: no subscriptions")
	}
	go func() {
		for err := range s.group.Errors() {
			s.log.Warn("consumer_group_error", observability.F("error", err.Error()))
		}
	}()

	s.log.Info("consumer_started", observability.F("topics", topics))
	handler := &claimHandler{s: s}
	for {
		if err := s.group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return fmt.Errorf("kafka: consume: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(rejoinBackoff):
		}
	}
}

func (s *Subscriber) Close() error {
	return s.group.Close()
}

// dispatch decodes msg and runs every handler for its topic.
func (s *Subscriber) dispatch(ctx context.Context, msg *sarama.ConsumerMessage) error {
	carrier := propagation.MapCarrier{}
	var eventID string
	for _, h := range msg.Headers {
		if h == nil {
			continue
		}
		if string(h.Key) == HeaderEventID {
			eventID = string(h.Value)
		}
		carrier[string(h.Key)] = string(h.Value)
	}
	ctx = otel.GetTextMapPropagator().Extract(ctx, carrier)

	ctx, span := s.tracer.Start(ctx, "Consume "+msg.Topic,
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination.name", msg.Topic),
		attribute.Int64("messaging.kafka.partition", int64(msg.Partition)),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)
	defer span.End()

	ctx, logger := logctx.Enrich(ctx, s.log,
		observability.F("topic", msg.Topic),
		observability.F("partition", msg.Partition),
		observability.F("offset", msg.Offset),
	)
	if eventID != "" {
		logger = logger.With(observability.F("event_id", eventID))
		ctx = logctx.With(ctx, logger)
	}

	e, err := eventcodec.Decode(msg.Topic, msg.Value)
	if err != nil {
		span.SetStatus(codes.Error, "POISON")
		s.poison.Add(1, observability.L("topic", msg.Topic))
		logger.Error("event_poison",
			observability.F("error", err.Error()),
			observability.F("key", string(msg.Key)),
			observability.F("operator_alert", true),
		)
		return fmt.Errorf("%w: %w", eventcodec.ErrPoison, err)
	}

	s.mu.RLock()
	handlers := append([]domoutbox.Handler(nil), s.handlers[msg.Topic]...)
	s.mu.RUnlock()

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

type claimHandler struct{ s *Subscriber }

func (h *claimHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *claimHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			err := h.s.dispatch(sess.Context(), msg)
			switch {
			case err == nil:
				sess.MarkMessage(msg, "")
			case errors.Is(err, eventcodec.ErrPoison):
				sess.MarkMessage(msg, "poison")
			default:
				h.s.log.Warn("event_not_acked",
					observability.F("topic", msg.Topic),
					observability.F("partition", msg.Partition),
					observability.F("offset", msg.Offset),
					observability.F("error", err.Error()),
				)
				// Leaving the claim ends the session; the rejoin redelivers from this offset.
				return nil
			}
		case <-sess.Context().Done():
			return nil
		}
	}
}
