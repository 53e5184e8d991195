package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type OrderRepository struct{ s *Store }

const orderColumns = `id, buyer_id, seller_id, status, total_amount_cents, currency, created_at, updated_at`

func (r *OrderRepository) Insert(ctx context.Context, o *domain.Order) error {
	if o == nil {
		return fmt.Errorf("order repository: order is required")
	}
	return r.s.WithTx(ctx, func(ctx context.Context) error {
		const stmt = `
INSERT INTO orders (buyer_id, seller_id, status, total_amount_cents, currency, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`
		var id int64
		if err := r.s.queryRow(ctx, stmt,
			o.BuyerID, o.SellerID, string(o.Status), o.TotalAmountCents, o.Currency, o.CreatedAt, o.UpdatedAt,
		).Scan(&id); err != nil {
			if isCheckViolation(err) {
				return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
			}
			return fmt.Errorf("insert order: %w", err)
		}

		const lineStmt = `
INSERT INTO order_lines (order_id, line_no, item_id, item_name, unit_price_cents, quantity)
VALUES ($1, $2, $3, $4, $5, $6)`
		for i, l := range o.Lines {
			if _, err := r.s.exec(ctx, lineStmt, id, i+1, l.ItemID, l.ItemName, l.UnitPriceCents, l.Quantity); err != nil {
				return fmt.Errorf("insert order line %d: %w", i+1, err)
			}
		}
		o.ID = id
		return nil
	})
}

func (r *OrderRepository) Get(ctx context.Context, id int64) (*domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetForUpdate row-locks the order until the surrounding transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.get(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *OrderRepository) get(ctx context.Context, query string, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.s.queryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := r.attachLines(ctx, []*domain.Order{o}); err != nil {
		return nil, err
	}
	return o, nil
}

// Update writes the mutable columns; lines and totals are immutable after insert.
func (r *OrderRepository) Update(ctx context.Context, o *domain.Order) error {
	if o == nil || o.ID == 0 {
		return fmt.Errorf("order repository: id is required")
	}
	const stmt = `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`
	tag, err := r.s.exec(ctx, stmt, o.ID, string(o.Status), o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID int64) ([]*domain.Order, error) {
	const query = `SELECT ` + orderColumns + ` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, buyerID)
}

func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID int64, statuses ...domain.Status) ([]*domain.Order, error) {
	const query = `
SELECT ` + orderColumns + `
FROM orders
WHERE seller_id = $1 AND ($2::text[] IS NULL OR status = ANY($2))
ORDER BY created_at DESC, id DESC`

	var filter []string
	for _, st := range statuses {
		filter = append(filter, string(st))
	}
	return r.list(ctx, query, sellerID, filter)
}

func (r *OrderRepository) CountBySeller(ctx context.Context, sellerID int64) (map[domain.Status]int, error) {
	rows, err := r.s.query(ctx, `SELECT status, COUNT(*) FROM orders WHERE seller_id = $1 GROUP BY status`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count orders: %w", err)
		}
		counts[domain.Status(status)] = n
	}
	return counts, rows.Err()
}

func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Order, error) {
	rows, err := r.s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("list orders: %w", err)
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if err := r.attachLines(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *OrderRepository) attachLines(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*domain.Order, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
		byID[o.ID] = o
	}

	const query = `
SELECT order_id, item_id, item_name, unit_price_cents, quantity
FROM order_lines
WHERE order_id = ANY($1)
ORDER BY order_id, line_no`
	rows, err := r.s.query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var orderID int64
		var l domain.Line
		if err := rows.Scan(&orderID, &l.ItemID, &l.ItemName, &l.UnitPriceCents, &l.Quantity); err != nil {
			return fmt.Errorf("load order lines: %w", err)
		}
		if o, ok := byID[orderID]; ok {
			o.Lines = append(o.Lines, l)
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var status string
	if err := row.Scan(&o.ID, &o.BuyerID, &o.SellerID, &status, &o.TotalAmountCents, &o.Currency, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	o.Status = domain.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}
