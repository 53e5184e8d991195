package kafka

import (
	"context"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/eventcodec"
)

// MessageWriter is the part of *kafkago.Writer the projector uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// NewProjectionWriter builds the writer for the catalog projection stream. Messages are
// hashed by item id so updates to one item stay ordered.
func NewProjectionWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		BatchTimeout:           10 * time.Millisecond,
		BatchSize:              100,
		AllowAutoTopicCreation: true,
	}
}

// Projector publishes catalog.item.upserted to the search-index stream.
type Projector struct {
	writer MessageWriter
}

func NewProjector(w MessageWriter) *Projector {
	return &Projector{writer: w}
}

func (p *Projector) PublishItemUpserted(ctx context.Context, e dominv.ItemUpsertedEvent) error {
	payload, err := eventcodec.Encode(e)
	if err != nil {
		return err
	}

	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := []kafkago.Header{{Key: HeaderContentType, Value: []byte(eventcodec.ContentType)}}
	for k, v := range carrier {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}

	msg := kafkago.Message{
		Key:     []byte(e.EventKey()),
		Value:   payload,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: project item %d: %w", e.ItemID, err)
	}
	return nil
}

func (p *Projector) Close() error {
	return p.writer.Close()
}
