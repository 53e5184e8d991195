package memory

import (
	"context"
	"sync"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/clock"
)

// Store is an in-process order/catalog store. A transaction holds the store-wide lock for
// its whole duration, which serializes per-order mutations and makes reserve check-and-decrement
// atomic. A failed or panicking transaction restores the snapshot taken when it began.
// The snapshot copies every order and item, so each transaction costs O(store size); this
// store is meant for development and tests.
type Store struct {
	mu    sync.Mutex
	clock clock.Clock

	orders      map[int64]*order.Order
	items       map[int64]*inventory.Item
	sellers     map[int64]order.Seller
	nextOrderID int64
}

type txKey struct{}

func NewStore(c clock.Clock) *Store {
	if c == nil {
		c = clock.System()
	}
	return &Store{
		clock:   c,
		orders:  make(map[int64]*order.Order),
		items:   make(map[int64]*inventory.Item),
		sellers: make(map[int64]order.Seller),
	}
}

func (s *Store) Orders() *OrderRepository    { return &OrderRepository{s: s} }
func (s *Store) Items() *InventoryRepository { return &InventoryRepository{s: s} }
func (s *Store) Sellers() *SellerRepository  { return &SellerRepository{s: s} }

// WithTx runs fn with the store locked. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	defer func() {
		if rec := recover(); rec != nil {
			s.restore(snap)
			panic(rec)
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lock takes the store lock unless ctx already runs inside one of this store's transactions.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

type snapshot struct {
	orders      map[int64]*order.Order
	items       map[int64]*inventory.Item
	sellers     map[int64]order.Seller
	nextOrderID int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		orders:      make(map[int64]*order.Order, len(s.orders)),
		items:       make(map[int64]*inventory.Item, len(s.items)),
		sellers:     make(map[int64]order.Seller, len(s.sellers)),
		nextOrderID: s.nextOrderID,
	}
	for id, o := range s.orders {
		snap.orders[id] = o.Clone()
	}
	for id, it := range s.items {
		snap.items[id] = it.Clone()
	}
	for id, sl := range s.sellers {
		snap.sellers[id] = sl
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.orders = snap.orders
	s.items = snap.items
	s.sellers = snap.sellers
	s.nextOrderID = snap.nextOrderID
}
