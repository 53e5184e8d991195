// Package feed keeps a per-order timeline built from published order events.
// Deliveries are at-least-once; the worker dedupes them on event id.
package feed

import (
	"context"
	"time"

	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type Entry struct {
	EventID    string          `json:"eventId"`
	Topic      string          `json:"topic"`
	OrderID    int64           `json:"orderId"`
	Status     domorder.Status `json:"status"`
	OccurredAt time.Time       `json:"occurredAt"`
}

type Store interface {
	Append(ctx context.Context, e Entry) error
	Timeline(ctx context.Context, orderID int64) ([]Entry, error)
}

// ClaimStore grants a key to its first claimant only.
type ClaimStore interface {
	Claim(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
}
