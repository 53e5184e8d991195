package order

import (
	"strconv"
	"time"
)

const (
	TopicCreated   = "order.created"
	TopicPaid      = "order.paid"
	TopicConfirmed = "order.confirmed"
	TopicCancelled = "order.cancelled"
	TopicReady     = "order.ready"
	TopicDelivered = "order.delivered"
)

// Topics lists every topic an order event can be published to.
func Topics() []string {
	return []string{TopicCreated, TopicPaid, TopicConfirmed, TopicCancelled, TopicReady, TopicDelivered}
}

// Event is the outcome event published after an order mutation commits.
// All order topics share this payload.
type Event struct {
	Topic            string    `json:"-"`
	ID               string    `json:"eventId"`
	OrderID          int64     `json:"orderId"`
	BuyerID          int64     `json:"buyerId"`
	SellerID         int64     `json:"sellerId"`
	Status           Status    `json:"status"`
	TotalAmountCents int64     `json:"totalAmountCents"`
	OccurredAt       time.Time `json:"occurredAt"`
}

func (e Event) EventName() string { return e.Topic }

// EventKey keys the event by order so a partitioned log keeps per-order ordering.
func (e Event) EventKey() string { return strconv.FormatInt(e.OrderID, 10) }

func (e Event) EventID() string { return e.ID }

func NewEvent(topic, id string, o *Order, now time.Time) Event {
	return Event{
		Topic:            topic,
		ID:               id,
		OrderID:          o.ID,
		BuyerID:          o.BuyerID,
		SellerID:         o.SellerID,
		Status:           o.Status,
		TotalAmountCents: o.TotalAmountCents,
		OccurredAt:       now.UTC(),
	}
}

// StatusTopic returns the topic announcing a status change, if that status is announced.
// PAID is announced only by the payment path; PREPARING is not announced.
func StatusTopic(s Status) (string, bool) {
	switch s {
	case StatusConfirmed:
		return TopicConfirmed, true
	case StatusCancelled:
		return TopicCancelled, true
	case StatusReady:
		return TopicReady, true
	case StatusDelivered:
		return TopicDelivered, true
	default:
		return "", false
	}
}
