package order

import (
	"context"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

type IDGenerator interface {
	NewID() string
}

// TxManager runs fn in one storage transaction. fn's ctx must be passed to every repository
// call that belongs to the transaction.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// InventoryPort is the slice of the inventory coordinator the command processor needs.
type InventoryPort interface {
	Item(ctx context.Context, itemID int64) (*dominv.Item, error)
	ReserveLines(ctx context.Context, holds []dominv.Hold) ([]dominv.Adjustment, error)
	ReleaseLines(ctx context.Context, holds []dominv.Hold) ([]dominv.Adjustment, error)
	Project(ctx context.Context, adjs []dominv.Adjustment)
}
