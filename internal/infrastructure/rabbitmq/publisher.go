package rabbitmq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/eventcodec"
)

const headerEventID = "event-id"

type Config struct {
	URL      string
	Exchange string
	// QueuePrefix names the consumer queues: <prefix>.<topic>.
	QueuePrefix string
	Prefetch    int
	Requeue     bool
	CallTimeout time.Duration
}

// Dial opens a connection and one channel on it.
func Dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	return conn, ch, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("rabbitmq: declare exchange: %w", err)
	}
	return nil
}

// Publisher routes each event to the topic exchange with the topic as routing key and
// waits for the broker's publisher confirm.
type Publisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
}

func NewPublisher(ch *amqp.Channel, exchange string) (*Publisher, error) {
	if err := declareExchange(ch, exchange); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("rabbitmq: enable confirm mode: %w", err)
	}
	return &Publisher{ch: ch, exchange: exchange}, nil
}

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	body, err := eventcodec.Encode(e)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  eventcodec.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    domoutbox.IDOf(e),
		Timestamp:    time.Now().UTC(),
		Headers:      outboundHeaders(ctx, e),
		Body:         body,
	}

	p.mu.Lock()
	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange,
		e.EventName(),
		false, // mandatory
		false, // immediate
		pub,
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", e.EventName(), err)
	}
	if confirm == nil {
		return nil
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq: confirm %s: %w", e.EventName(), err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq: broker nacked %s", e.EventName())
	}
	return nil
}

func outboundHeaders(ctx context.Context, e domoutbox.Event) amqp.Table {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	headers := amqp.Table{}
	if id := domoutbox.IDOf(e); id != "" {
		headers[headerEventID] = id
	}
	if key := domoutbox.KeyOf(e); key != "" {
		headers["partition-key"] = key
	}
	for k, v := range carrier {
		headers[k] = v
	}
	return headers
}
