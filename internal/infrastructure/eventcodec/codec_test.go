package eventcodec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	dompayment "github.com/Zhima-Mochi/minishop-orders/internal/domain/payment"
)

func TestOrderEventWireShape(t *testing.T) {
	e := domorder.Event{
		Topic: domorder.TopicConfirmed, ID: "e-1", OrderID: 42, BuyerID: 7, SellerID: 1,
		Status: domorder.StatusConfirmed, TotalAmountCents: 1300,
		OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	b, err := Encode(e)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"eventId":"e-1","orderId":42,"buyerId":7,"sellerId":1,
		"status":"CONFIRMED","totalAmountCents":1300,"occurredAt":"2024-03-01T12:00:00Z"
	}`, string(b))

	decoded, err := Decode(domorder.TopicConfirmed, b)
	require.NoError(t, err)
	require.Equal(t, e, decoded)
}

func TestDecodePaymentOutcome(t *testing.T) {
	got, err := Decode(dompayment.TopicFailed, []byte(`{"orderId":9,"buyerId":7,"status":"FAILED","amountCents":500}`))
	require.NoError(t, err)
	outcome := got.(dompayment.OutcomeEvent)
	require.Equal(t, int64(9), outcome.OrderID)
	require.Equal(t, dompayment.TopicFailed, outcome.EventName())
}

func TestDecodePoisonAndUnknown(t *testing.T) {
	_, err := Decode(dompayment.TopicSucceeded, []byte(`{not json`))
	require.ErrorIs(t, err, ErrPoison)

	_, err = Decode(dompayment.TopicSucceeded, []byte(`{"buyerId":7}`))
	require.ErrorIs(t, err, ErrPoison)

	_, err = Decode("payment.refunded", []byte(`{}`))
	require.ErrorIs(t, err, ErrUnknownTopic)
}
