package payment

import "strconv"

const (
	TopicSucceeded = "payment.success"
	TopicFailed    = "payment.failed"
)

// OutcomeEvent is the payment processor's verdict for an order. It is consumed, never produced here.
type OutcomeEvent struct {
	Topic       string `json:"-"`
	OrderID     int64  `json:"orderId"`
	BuyerID     int64  `json:"buyerId"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amountCents"`
}

func (e OutcomeEvent) EventName() string { return e.Topic }

func (e OutcomeEvent) EventKey() string { return strconv.FormatInt(e.OrderID, 10) }
