package memory

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

type InventoryRepository struct{ s *Store }

func (r *InventoryRepository) Get(ctx context.Context, itemID int64) (*domain.Item, error) {
	defer r.s.lock(ctx)()

	item, ok := r.s.items[itemID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return item.Clone(), nil
}

func (r *InventoryRepository) Reserve(ctx context.Context, itemID int64, quantity int) (domain.Adjustment, error) {
	defer r.s.lock(ctx)()

	item, ok := r.s.items[itemID]
	if !ok {
		return domain.Adjustment{}, domain.ErrNotFound
	}
	return item.Reserve(quantity, r.s.clock.Now())
}

func (r *InventoryRepository) Release(ctx context.Context, itemID int64, quantity int) (domain.Adjustment, error) {
	defer r.s.lock(ctx)()

	item, ok := r.s.items[itemID]
	if !ok {
		return domain.Adjustment{}, domain.ErrNotFound
	}
	return item.Release(quantity, r.s.clock.Now())
}

func (r *InventoryRepository) Upsert(ctx context.Context, item *domain.Item) error {
	if item == nil || item.ID == 0 {
		return fmt.Errorf("inventory repository: id is required")
	}
	if item.AvailableQty != nil && *item.AvailableQty < 0 {
		return domain.ErrInvalidQuantity
	}
	defer r.s.lock(ctx)()

	r.s.items[item.ID] = item.Clone()
	return nil
}
