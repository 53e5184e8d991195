package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type SellerRepository struct{ s *Store }

func (r *SellerRepository) Get(ctx context.Context, id int64) (domain.Seller, error) {
	var sl domain.Seller
	err := r.s.queryRow(ctx, `SELECT id, user_id, display_name FROM sellers WHERE id = $1`, id).
		Scan(&sl.ID, &sl.UserID, &sl.DisplayName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Seller{}, domain.ErrSellerNotFound
		}
		return domain.Seller{}, fmt.Errorf("get seller: %w", err)
	}
	return sl, nil
}

func (r *SellerRepository) Upsert(ctx context.Context, sl domain.Seller) error {
	if sl.ID == 0 {
		return fmt.Errorf("seller repository: id is required")
	}
	const stmt = `
INSERT INTO sellers (id, user_id, display_name)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, display_name = EXCLUDED.display_name`

	if _, err := r.s.exec(ctx, stmt, sl.ID, sl.UserID, sl.DisplayName); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: seller user %d already linked", domain.ErrConflict, sl.UserID)
		}
		return fmt.Errorf("upsert seller: %w", err)
	}
	return nil
}
