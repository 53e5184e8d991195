package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

// InventoryRepository applies stock changes as single conditional UPDATEs, so concurrent
// reservations of the same item cannot both pass the quantity check.
type InventoryRepository struct{ s *Store }

func (r *InventoryRepository) Get(ctx context.Context, itemID int64) (*domain.Item, error) {
	const query = `
SELECT id, seller_id, name, description, menu_name, tags, price_cents,
       is_available, available_qty, auto_disabled, updated_at
FROM catalog_items
WHERE id = $1`

	var it domain.Item
	err := r.s.queryRow(ctx, query, itemID).Scan(
		&it.ID, &it.SellerID, &it.Name, &it.Description, &it.MenuName, &it.Tags, &it.PriceCents,
		&it.Available, &it.AvailableQty, &it.AutoDisabled, &it.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get item: %w", err)
	}
	it.UpdatedAt = it.UpdatedAt.UTC()
	return &it, nil
}

func (r *InventoryRepository) Reserve(ctx context.Context, itemID int64, quantity int) (domain.Adjustment, error) {
	if quantity <= 0 {
		return domain.Adjustment{}, domain.ErrInvalidQuantity
	}
	const stmt = `
WITH prev AS (
	SELECT id, is_available FROM catalog_items WHERE id = $1 FOR UPDATE
)
UPDATE catalog_items AS c
SET available_qty = c.available_qty - $2,
    is_available  = CASE WHEN c.available_qty - $2 = 0 THEN FALSE ELSE c.is_available END,
    auto_disabled = CASE WHEN c.available_qty - $2 = 0 AND c.is_available THEN TRUE ELSE c.auto_disabled END,
    updated_at    = $3
FROM prev
WHERE c.id = prev.id AND c.available_qty IS NOT NULL AND c.available_qty >= $2
RETURNING c.available_qty, c.is_available, prev.is_available`

	adj, ok, err := r.adjust(ctx, stmt, itemID, quantity)
	if err != nil || ok {
		return adj, err
	}
	return r.unchanged(ctx, itemID, domain.ErrInsufficientStock)
}

func (r *InventoryRepository) Release(ctx context.Context, itemID int64, quantity int) (domain.Adjustment, error) {
	if quantity <= 0 {
		return domain.Adjustment{}, domain.ErrInvalidQuantity
	}
	const stmt = `
WITH prev AS (
	SELECT id, is_available FROM catalog_items WHERE id = $1 FOR UPDATE
)
UPDATE catalog_items AS c
SET available_qty = c.available_qty + $2,
    is_available  = CASE WHEN c.auto_disabled THEN TRUE ELSE c.is_available END,
    auto_disabled = FALSE,
    updated_at    = $3
FROM prev
WHERE c.id = prev.id AND c.available_qty IS NOT NULL
RETURNING c.available_qty, c.is_available, prev.is_available`

	adj, ok, err := r.adjust(ctx, stmt, itemID, quantity)
	if err != nil || ok {
		return adj, err
	}
	return r.unchanged(ctx, itemID, nil)
}

// adjust runs a conditional stock UPDATE; ok is false when no row matched.
func (r *InventoryRepository) adjust(ctx context.Context, stmt string, itemID int64, quantity int) (domain.Adjustment, bool, error) {
	var remaining int
	var available, wasAvailable bool
	err := r.s.queryRow(ctx, stmt, itemID, quantity, r.s.clock.Now()).Scan(&remaining, &available, &wasAvailable)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Adjustment{}, false, nil
		}
		return domain.Adjustment{}, false, fmt.Errorf("adjust item %d: %w", itemID, err)
	}
	return domain.Adjustment{
		ItemID:              itemID,
		Tracked:             true,
		Remaining:           remaining,
		Available:           available,
		AvailabilityChanged: available != wasAvailable,
	}, true, nil
}

// unchanged explains why no row was updated: the item is missing, untracked, or short.
func (r *InventoryRepository) unchanged(ctx context.Context, itemID int64, shortErr error) (domain.Adjustment, error) {
	it, err := r.Get(ctx, itemID)
	if err != nil {
		return domain.Adjustment{}, err
	}
	adj := domain.Adjustment{ItemID: it.ID, Tracked: it.Tracked(), Available: it.Available}
	if !it.Tracked() {
		return adj, nil
	}
	adj.Remaining = *it.AvailableQty
	if shortErr != nil {
		return adj, shortErr
	}
	return adj, nil
}

func (r *InventoryRepository) Upsert(ctx context.Context, it *domain.Item) error {
	if it == nil || it.ID == 0 {
		return fmt.Errorf("inventory repository: id is required")
	}
	if it.AvailableQty != nil && *it.AvailableQty < 0 {
		return domain.ErrInvalidQuantity
	}
	const stmt = `
INSERT INTO catalog_items (id, seller_id, name, description, menu_name, tags, price_cents,
                           is_available, available_qty, auto_disabled, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
	seller_id = EXCLUDED.seller_id,
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	menu_name = EXCLUDED.menu_name,
	tags = EXCLUDED.tags,
	price_cents = EXCLUDED.price_cents,
	is_available = EXCLUDED.is_available,
	available_qty = EXCLUDED.available_qty,
	auto_disabled = EXCLUDED.auto_disabled,
	updated_at = EXCLUDED.updated_at`

	tags := it.Tags
	if tags == nil {
		tags = []string{}
	}
	updated := it.UpdatedAt
	if updated.IsZero() {
		updated = r.s.clock.Now()
	}
	_, err := r.s.exec(ctx, stmt,
		it.ID, it.SellerID, it.Name, it.Description, it.MenuName, tags, it.PriceCents,
		it.Available, it.AvailableQty, it.AutoDisabled, updated,
	)
	if err != nil {
		if isCheckViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrInvalidQuantity, err)
		}
		return fmt.Errorf("upsert item: %w", err)
	}
	return nil
}
