package order

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appinventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/clock"
)

const (
	sellerID     = int64(1)
	sellerUserID = int64(100)
	buyerID      = int64(7)
	dosaID       = int64(10) // tracked, 3 in stock, 500
	coffeeID     = int64(11) // untracked, 300
	otherItemID  = int64(20) // belongs to another seller
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventName())
	}
	return out
}

type recordingProjector struct {
	mu     sync.Mutex
	events []dominv.ItemUpsertedEvent
}

func (p *recordingProjector) PublishItemUpserted(_ context.Context, e dominv.ItemUpsertedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "evt-" + strconv.Itoa(s.n)
}

type harness struct {
	store     *memory.Store
	clock     *clock.Fixed
	publisher *recordingPublisher
	projector *recordingProjector
	deps      Deps

	create   *CreateOrderUseCase
	status   *UpdateStatusUseCase
	markPaid *MarkPaidUseCase
	cancel   *CancelAfterPaymentFailureUseCase
	queries  *Queries
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	clk := clock.NewFixed(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore(clk)

	require.NoError(t, store.Sellers().Upsert(ctx, domain.Seller{ID: sellerID, UserID: sellerUserID, DisplayName: "Dosa Corner"}))
	require.NoError(t, store.Sellers().Upsert(ctx, domain.Seller{ID: 2, UserID: 200, DisplayName: "Chai Point"}))
	require.NoError(t, store.Items().Upsert(ctx, &dominv.Item{
		ID: dosaID, SellerID: sellerID, PriceCents: 500, Available: true, AvailableQty: dominv.Qty(3), Name: "Masala Dosa",
	}))
	require.NoError(t, store.Items().Upsert(ctx, &dominv.Item{
		ID: coffeeID, SellerID: sellerID, PriceCents: 300, Available: true, Name: "Filter Coffee",
	}))
	require.NoError(t, store.Items().Upsert(ctx, &dominv.Item{
		ID: otherItemID, SellerID: 2, PriceCents: 100, Available: true, Name: "Chai",
	}))

	pub := &recordingPublisher{}
	proj := &recordingProjector{}
	tel := observability.Nop()
	deps := Deps{
		Tx:        store,
		Orders:    store.Orders(),
		Sellers:   store.Sellers(),
		Inventory: appinventory.NewCoordinator(store.Items(), store.Sellers(), proj, tel),
		Publisher: pub,
		IDs:       &seqIDs{},
		Clock:     clk,
		Tel:       tel,
	}
	return &harness{
		store:     store,
		clock:     clk,
		publisher: pub,
		projector: proj,
		deps:      deps,
		create:    NewCreateOrderUseCase(deps),
		status:    NewUpdateStatusUseCase(deps),
		markPaid:  NewMarkPaidUseCase(deps),
		cancel:    NewCancelAfterPaymentFailureUseCase(deps),
		queries:   NewQueries(store.Orders(), store.Sellers(), nil),
	}
}

// basket is 2 dosas and 1 coffee: 2*500 + 1*300 = 1300.
func basket(expectedTotal int64) CreateOrderInput {
	return CreateOrderInput{
		BuyerID:  buyerID,
		SellerID: sellerID,
		Lines: []CreateLine{
			{ItemID: dosaID, Quantity: 2, ExpectedUnitPriceCents: 500},
			{ItemID: coffeeID, Quantity: 1, ExpectedUnitPriceCents: 300},
		},
		ExpectedTotalCents: expectedTotal,
	}
}

func (h *harness) placeOrder(t *testing.T) *domain.Order {
	t.Helper()
	res, err := h.create.Execute(context.Background(), basket(1300))
	require.NoError(t, err)
	return res.Order
}

// forceStatus rewrites the stored status directly, bypassing the table.
func (h *harness) forceStatus(t *testing.T, id int64, s domain.Status) {
	t.Helper()
	ctx := context.Background()
	o, err := h.store.Orders().Get(ctx, id)
	require.NoError(t, err)
	o.Status = s
	require.NoError(t, h.store.Orders().Update(ctx, o))
}

func (h *harness) stock(t *testing.T, itemID int64) (int, bool) {
	t.Helper()
	item, err := h.store.Items().Get(context.Background(), itemID)
	require.NoError(t, err)
	if item.AvailableQty == nil {
		return -1, item.Available
	}
	return *item.AvailableQty, item.Available
}

func (h *harness) storedStatus(t *testing.T, id int64) domain.Status {
	t.Helper()
	o, err := h.store.Orders().Get(context.Background(), id)
	require.NoError(t, err)
	return o.Status
}

var sellerActor = Actor{ID: sellerUserID, IsSeller: true}
var buyerActor = Actor{ID: buyerID}
