package order

import (
	"context"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
)

// pendingStatuses are the orders a seller still has to act on.
var pendingStatuses = []domain.Status{domain.StatusPaid, domain.StatusConfirmed, domain.StatusPreparing}

type SellerStats struct {
	Pending   int `json:"pending"`
	Preparing int `json:"preparing"`
	Ready     int `json:"ready"`
}

// Queries serves read-only views of orders. Reads run outside transactions.
type Queries struct {
	orders  domain.Repository
	sellers domain.SellerRepository
	log     observability.Logger
}

func NewQueries(orders domain.Repository, sellers domain.SellerRepository, logger observability.Logger) *Queries {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Queries{orders: orders, sellers: sellers, log: logger.With(observability.F("service", orderService))}
}

// GetOrder returns the order if actor is its buyer or its seller.
func (q *Queries) GetOrder(ctx context.Context, orderID int64, actor Actor) (*domain.Order, error) {
	o, err := q.orders.Get(ctx, orderID)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	if err := authorize(ctx, q.sellers, o, actor); err != nil {
		logctx.FromOr(ctx, q.log).Warn("order_read_denied",
			observability.F("order_id", orderID),
			observability.F("actor_id", actor.ID),
		)
		return nil, err
	}
	return o, nil
}

func (q *Queries) ListBuyerOrders(ctx context.Context, buyerID int64) ([]*domain.Order, error) {
	orders, err := q.orders.ListByBuyer(ctx, buyerID)
	return orders, wrapRepositoryError(err)
}

func (q *Queries) ListSellerOrders(ctx context.Context, sellerID int64) ([]*domain.Order, error) {
	orders, err := q.orders.ListBySeller(ctx, sellerID)
	return orders, wrapRepositoryError(err)
}

func (q *Queries) ListPendingSellerOrders(ctx context.Context, sellerID int64) ([]*domain.Order, error) {
	orders, err := q.orders.ListBySeller(ctx, sellerID, pendingStatuses...)
	return orders, wrapRepositoryError(err)
}

// SellerStats counts PAID and CONFIRMED orders as pending.
func (q *Queries) SellerStats(ctx context.Context, sellerID int64) (SellerStats, error) {
	counts, err := q.orders.CountBySeller(ctx, sellerID)
	if err != nil {
		return SellerStats{}, wrapRepositoryError(err)
	}
	return SellerStats{
		Pending:   counts[domain.StatusPaid] + counts[domain.StatusConfirmed],
		Preparing: counts[domain.StatusPreparing],
		Ready:     counts[domain.StatusReady],
	}, nil
}

// CheckSellerAccess lets only the seller's own user read its order views.
func (q *Queries) CheckSellerAccess(ctx context.Context, sellerID int64, actor Actor) error {
	if !actor.IsSeller {
		return domain.ErrUnauthorized
	}
	seller, err := q.sellers.Get(ctx, sellerID)
	if err != nil {
		return wrapRepositoryError(err)
	}
	if seller.UserID != actor.ID {
		return domain.ErrUnauthorized
	}
	return nil
}
