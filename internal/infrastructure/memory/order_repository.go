package memory

import (
	"context"
	"fmt"
	"slices"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type OrderRepository struct{ s *Store }

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return fmt.Errorf("order repository: order is required")
	}
	defer r.s.lock(ctx)()

	r.s.nextOrderID++
	o.ID = r.s.nextOrderID
	r.s.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (*domain.Order, error) {
	defer r.s.lock(ctx)()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Clone(), nil
}

// GetForUpdate relies on the transaction lock; outside a transaction it behaves like Get.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.Get(ctx, id)
}

func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == 0 {
		return fmt.Errorf("order repository: id is required")
	}
	defer r.s.lock(ctx)()

	if _, ok := r.s.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.orders[o.ID] = o.Clone()
	return nil
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID int64) ([]*domain.Order, error) {
	defer r.s.lock(ctx)()

	return r.collect(func(o *domain.Order) bool { return o.BuyerID == buyerID }), nil
}

func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID int64, statuses ...domain.Status) ([]*domain.Order, error) {
	defer r.s.lock(ctx)()

	return r.collect(func(o *domain.Order) bool {
		if o.SellerID != sellerID {
			return false
		}
		return len(statuses) == 0 || slices.Contains(statuses, o.Status)
	}), nil
}

func (r *OrderRepository) CountBySeller(ctx context.Context, sellerID int64) (map[domain.Status]int, error) {
	defer r.s.lock(ctx)()

	counts := make(map[domain.Status]int)
	for _, o := range r.s.orders {
		if o.SellerID == sellerID {
			counts[o.Status]++
		}
	}
	return counts, nil
}

// collect returns matching orders newest first. Callers hold the lock.
func (r *OrderRepository) collect(match func(*domain.Order) bool) []*domain.Order {
	out := make([]*domain.Order, 0)
	for _, o := range r.s.orders {
		if match(o) {
			out = append(out, o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return out
}
