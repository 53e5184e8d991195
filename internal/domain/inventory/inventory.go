package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: item not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Item is a catalog item as seen by the coordinator. Only the stock fields are written here;
// the descriptive fields are owned by the catalog and carried for projections.
type Item struct {
	ID         int64
	SellerID   int64
	PriceCents int64
	Available  bool
	// AvailableQty is nil for untracked (unlimited) items.
	AvailableQty *int
	// AutoDisabled is set when the coordinator turned availability off on reaching zero.
	AutoDisabled bool

	Name        string
	Description string
	MenuName    string
	Tags        []string

	UpdatedAt time.Time
}

// Hold is a quantity of one item reserved for an order.
type Hold struct {
	ItemID   int64
	Quantity int
}

// Adjustment describes the effect of a reserve or release on one item.
type Adjustment struct {
	ItemID              int64
	Tracked             bool
	Remaining           int
	Available           bool
	AvailabilityChanged bool
}

func (i *Item) Tracked() bool {
	return i.AvailableQty != nil
}

// Reserve decrements tracked stock. Reaching zero turns availability off.
// Callers must hold whatever lock makes the check-and-decrement atomic.
func (i *Item) Reserve(quantity int, now time.Time) (Adjustment, error) {
	if quantity <= 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	adj := Adjustment{ItemID: i.ID, Tracked: i.Tracked(), Available: i.Available}
	if !i.Tracked() {
		return adj, nil
	}
	if *i.AvailableQty < quantity {
		adj.Remaining = *i.AvailableQty
		return adj, ErrInsufficientStock
	}

	remaining := *i.AvailableQty - quantity
	i.AvailableQty = &remaining
	if remaining == 0 && i.Available {
		i.Available = false
		i.AutoDisabled = true
		adj.AvailabilityChanged = true
	}
	i.UpdatedAt = now.UTC()

	adj.Remaining = remaining
	adj.Available = i.Available
	return adj, nil
}

// Release returns stock. Availability is restored only when this coordinator turned it off.
func (i *Item) Release(quantity int, now time.Time) (Adjustment, error) {
	if quantity <= 0 {
		return Adjustment{}, ErrInvalidQuantity
	}
	adj := Adjustment{ItemID: i.ID, Tracked: i.Tracked(), Available: i.Available}
	if !i.Tracked() {
		return adj, nil
	}

	restored := *i.AvailableQty + quantity
	i.AvailableQty = &restored
	if restored > 0 && i.AutoDisabled {
		i.AutoDisabled = false
		if !i.Available {
			i.Available = true
			adj.AvailabilityChanged = true
		}
	}
	i.UpdatedAt = now.UTC()

	adj.Remaining = restored
	adj.Available = i.Available
	return adj, nil
}

func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}
	clone := *i
	if i.AvailableQty != nil {
		qty := *i.AvailableQty
		clone.AvailableQty = &qty
	}
	clone.Tags = append([]string(nil), i.Tags...)
	return &clone
}

// Qty is a helper for building tracked quantities.
func Qty(n int) *int {
	return &n
}
