package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/eventcodec"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

// Publisher writes domain events to the topic named by the event, keyed by the event key.
type Publisher struct {
	producer sarama.SyncProducer
	log      observability.Logger
}

func NewPublisher(producer sarama.SyncProducer, tel observability.Observability) *Publisher {
	_, logger, _ := observability.Resolve(tel)
	return &Publisher{
		producer: producer,
		log:      logger.With(observability.F("component", "kafka_publisher")),
	}
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := eventcodec.Encode(e)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic:   e.EventName(),
		Value:   sarama.ByteEncoder(payload),
		Headers: headers(ctx, e),
	}
	if key := domoutbox.KeyOf(e); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka: publish %s: %w", e.EventName(), err)
	}
	logctx.FromOr(ctx, p.log).Debug("event_published",
		observability.F("topic", e.EventName()),
		observability.F("partition", partition),
		observability.F("offset", offset),
	)
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}

func headers(ctx context.Context, e domoutbox.Event) []sarama.RecordHeader {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	hs := make([]sarama.RecordHeader, 0, len(carrier)+2)
	hs = append(hs, sarama.RecordHeader{Key: []byte(HeaderContentType), Value: []byte(eventcodec.ContentType)})
	if id := domoutbox.IDOf(e); id != "" {
		hs = append(hs, sarama.RecordHeader{Key: []byte(HeaderEventID), Value: []byte(id)})
	}
	for k, v := range carrier {
		hs = append(hs, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return hs
}
