package inventory

import (
	"context"
)

type Repository interface {
	Get(ctx context.Context, itemID int64) (*Item, error)
	// Reserve must check and decrement atomically with respect to concurrent reservations
	// of the same item.
	Reserve(ctx context.Context, itemID int64, quantity int) (Adjustment, error)
	Release(ctx context.Context, itemID int64, quantity int) (Adjustment, error)
	// Upsert writes the whole item; used by seeding and tests, never by order commands.
	Upsert(ctx context.Context, item *Item) error
}
