package order

import "context"

type Repository interface {
	// Insert persists a new order and assigns its ID.
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id int64) (*Order, error)
	// GetForUpdate loads the order and holds it against concurrent mutation until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id int64) (*Order, error)
	Update(ctx context.Context, order *Order) error
	ListByBuyer(ctx context.Context, buyerID int64) ([]*Order, error)
	// ListBySeller returns the seller's orders, newest first, optionally filtered by status.
	ListBySeller(ctx context.Context, sellerID int64, statuses ...Status) ([]*Order, error)
	CountBySeller(ctx context.Context, sellerID int64) (map[Status]int, error)
}

// Seller is the identity record of the party fulfilling orders.
type Seller struct {
	ID          int64
	UserID      int64
	DisplayName string
}

type SellerRepository interface {
	Get(ctx context.Context, id int64) (Seller, error)
	Upsert(ctx context.Context, seller Seller) error
}
