package eventcodec

import (
	"encoding/json"
	"errors"
	"fmt"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	dompayment "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

const ContentType = "application/json"

var (
	ErrUnknownTopic = errors.New("eventcodec: unknown topic")
	// ErrPoison marks a message that can never be decoded; consumers ack it and alert.
	ErrPoison = errors.New("eventcodec: undecodable message")
)

// Encode renders the wire payload. The topic travels outside the payload.
func Encode(e domoutbox.Event) ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("eventcodec: encode %s: %w", e.EventName(), err)
	}
	return b, nil
}

// Decode maps a topic and payload back to the domain event published on it.
func Decode(topic string, data []byte) (domoutbox.Event, error) {
	switch {
	case isOrderTopic(topic):
		var e domorder.Event
		if err := unmarshal(topic, data, &e); err != nil {
			return nil, err
		}
		if e.OrderID <= 0 {
			return nil, fmt.Errorf("%w: %s: missing orderId", ErrPoison, topic)
		}
		e.Topic = topic
		return e, nil
	case topic == dompayment.TopicSucceeded || topic == dompayment.TopicFailed:
		var e dompayment.OutcomeEvent
		if err := unmarshal(topic, data, &e); err != nil {
			return nil, err
		}
		if e.OrderID <= 0 {
			return nil, fmt.Errorf("%w: %s: missing orderId", ErrPoison, topic)
		}
		e.Topic = topic
		return e, nil
	case topic == dominv.TopicItemUpserted:
		var e dominv.ItemUpsertedEvent
		if err := unmarshal(topic, data, &e); err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
}

func unmarshal(topic string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPoison, topic, err)
	}
	return nil
}

func isOrderTopic(topic string) bool {
	for _, t := range domorder.Topics() {
		if t == topic {
			return true
		}
	}
	return false
}
