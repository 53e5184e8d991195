package order

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

func TestCreateOrderReservesAndPublishes(t *testing.T) {
	h := newHarness(t)

	o := h.placeOrder(t)

	require.Equal(t, domain.StatusCreated, o.Status)
	require.Equal(t, int64(1300), o.TotalAmountCents)
	require.Equal(t, domain.DefaultCurrency, o.Currency)
	require.Len(t, o.Lines, 2)
	require.Equal(t, "Masala Dosa", o.Lines[0].ItemName)

	qty, available := h.stock(t, dosaID)
	require.Equal(t, 1, qty)
	require.True(t, available)

	require.Equal(t, []string{domain.TopicCreated}, h.publisher.topics())
	evt := h.publisher.events[0].(domain.Event)
	require.Equal(t, o.ID, evt.OrderID)
	require.Equal(t, "evt-1", evt.ID)
	require.Empty(t, h.projector.events)
}

func TestCreateOrderTotalMismatchReservesNothing(t *testing.T) {
	h := newHarness(t)

	_, err := h.create.Execute(context.Background(), basket(1200))
	require.ErrorIs(t, err, domain.ErrTotalMismatch)

	qty, available := h.stock(t, dosaID)
	require.Equal(t, 3, qty)
	require.True(t, available)

	orders, err := h.queries.ListBuyerOrders(context.Background(), buyerID)
	require.NoError(t, err)
	require.Empty(t, orders)
	require.Empty(t, h.publisher.topics())
}

func TestCreateOrderValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateOrderInput)
		setup  func(t *testing.T, h *harness)
		want   error
	}{
		{
			name:   "no lines",
			mutate: func(in *CreateOrderInput) { in.Lines = nil },
			want:   domain.ErrInvalidInput,
		},
		{
			name:   "zero quantity",
			mutate: func(in *CreateOrderInput) { in.Lines[0].Quantity = 0 },
			want:   domain.ErrInvalidInput,
		},
		{
			name: "quantity that would wrap the total",
			mutate: func(in *CreateOrderInput) {
				in.Lines = []CreateLine{{ItemID: coffeeID, Quantity: 1 + (1 << 62), ExpectedUnitPriceCents: 300}}
				in.ExpectedTotalCents = 300
			},
			want: domain.ErrInvalidInput,
		},
		{
			name: "subtotal that would wrap the total",
			setup: func(t *testing.T, h *harness) {
				item, err := h.store.Items().Get(context.Background(), coffeeID)
				require.NoError(t, err)
				item.PriceCents = math.MaxInt64 / 2
				require.NoError(t, h.store.Items().Upsert(context.Background(), item))
			},
			mutate: func(in *CreateOrderInput) {
				in.Lines = []CreateLine{{ItemID: coffeeID, Quantity: 3, ExpectedUnitPriceCents: math.MaxInt64 / 2}}
				in.ExpectedTotalCents = math.MaxInt64/2 - 1
			},
			want: domain.ErrInvalidInput,
		},
		{
			name:   "unknown seller",
			mutate: func(in *CreateOrderInput) { in.SellerID = 99 },
			want:   domain.ErrNotFound,
		},
		{
			name:   "unknown item",
			mutate: func(in *CreateOrderInput) { in.Lines[1].ItemID = 404 },
			want:   domain.ErrNotFound,
		},
		{
			name: "item of another seller",
			mutate: func(in *CreateOrderInput) {
				in.Lines = append(in.Lines, CreateLine{ItemID: otherItemID, Quantity: 1, ExpectedUnitPriceCents: 100})
				in.ExpectedTotalCents = 1400
			},
			want: domain.ErrNotAvailable,
		},
		{
			name:   "price changed",
			mutate: func(in *CreateOrderInput) { in.Lines[1].ExpectedUnitPriceCents = 250 },
			want:   domain.ErrPriceChanged,
		},
		{
			name:   "insufficient stock",
			mutate: func(in *CreateOrderInput) { in.Lines[0].Quantity = 4; in.ExpectedTotalCents = 2300 },
			want:   dominv.ErrInsufficientStock,
		},
		{
			name:   "item switched off",
			mutate: func(*CreateOrderInput) {},
			setup: func(t *testing.T, h *harness) {
				item, err := h.store.Items().Get(context.Background(), coffeeID)
				require.NoError(t, err)
				item.Available = false
				require.NoError(t, h.store.Items().Upsert(context.Background(), item))
			},
			want: domain.ErrNotAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(t, h)
			}
			in := basket(1300)
			tt.mutate(&in)

			_, err := h.create.Execute(context.Background(), in)
			require.ErrorIs(t, err, tt.want)

			qty, _ := h.stock(t, dosaID)
			require.Equal(t, 3, qty, "failed create must not keep reservations")
			require.Empty(t, h.publisher.topics())
		})
	}
}

func TestCreateOrderLastUnitsProjectsAvailability(t *testing.T) {
	h := newHarness(t)
	in := basket(1800)
	in.Lines[0].Quantity = 3

	_, err := h.create.Execute(context.Background(), in)
	require.NoError(t, err)

	qty, available := h.stock(t, dosaID)
	require.Equal(t, 0, qty)
	require.False(t, available)
	require.Len(t, h.projector.events, 1)
	require.Equal(t, dosaID, h.projector.events[0].ItemID)
	require.False(t, h.projector.events[0].IsAvailable)
	require.Equal(t, "Dosa Corner", h.projector.events[0].SellerName)
}

func TestConcurrentCreateForLastUnit(t *testing.T) {
	h := newHarness(t)
	single := func(qty int) CreateOrderInput {
		return CreateOrderInput{
			BuyerID:            buyerID,
			SellerID:           sellerID,
			Lines:              []CreateLine{{ItemID: dosaID, Quantity: qty, ExpectedUnitPriceCents: 500}},
			ExpectedTotalCents: int64(qty) * 500,
		}
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, qty := range []int{3, 1} {
		wg.Add(1)
		go func(i, qty int) {
			defer wg.Done()
			_, errs[i] = h.create.Execute(context.Background(), single(qty))
		}(i, qty)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, dominv.ErrInsufficientStock)
	}
	require.Equal(t, 1, succeeded, "exactly one reservation wins")

	qty, _ := h.stock(t, dosaID)
	require.GreaterOrEqual(t, qty, 0)
}

func TestCreateOrderPublishFailureDoesNotFailCommand(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = context.DeadlineExceeded

	res, err := h.create.Execute(context.Background(), basket(1300))
	require.NoError(t, err)
	require.Equal(t, domain.StatusCreated, h.storedStatus(t, res.Order.ID))
}
