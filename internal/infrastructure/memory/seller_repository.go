package memory

import (
	"context"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type SellerRepository struct{ s *Store }

func (r *SellerRepository) Get(ctx context.Context, id int64) (domain.Seller, error) {
	defer r.s.lock(ctx)()

	seller, ok := r.s.sellers[id]
	if !ok {
		return domain.Seller{}, domain.ErrSellerNotFound
	}
	return seller, nil
}

func (r *SellerRepository) Upsert(ctx context.Context, seller domain.Seller) error {
	if seller.ID == 0 {
		return fmt.Errorf("seller repository: id is required")
	}
	defer r.s.lock(ctx)()

	r.s.sellers[seller.ID] = seller
	return nil
}
