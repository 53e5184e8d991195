package order

import (
	"fmt"
	"math"
	"time"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
)

// DefaultCurrency is stamped on orders whose seller does not price in another currency.
const DefaultCurrency = "INR"

// MaxLineQuantity bounds one line; stores keep quantities as 32-bit integers.
const MaxLineQuantity = math.MaxInt32

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusConfirmed Status = "CONFIRMED"
	StatusPreparing Status = "PREPARING"
	StatusReady     Status = "READY"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// Line is a snapshot of one catalog item taken when the order was placed.
type Line struct {
	ItemID         int64
	ItemName       string
	UnitPriceCents int64
	Quantity       int
}

func (l Line) SubtotalCents() int64 {
	return l.UnitPriceCents * int64(l.Quantity)
}

type Order struct {
	ID               int64
	BuyerID          int64
	SellerID         int64
	Status           Status
	TotalAmountCents int64
	Currency         string
	Lines            []Line
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// New builds an order in CREATED with the total computed from the line snapshots.
// The ID is assigned by the repository on insert.
func New(buyerID, sellerID int64, lines []Line, now time.Time) (*Order, error) {
	if buyerID <= 0 || sellerID <= 0 {
		return nil, ErrInvalidInput
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	var total int64
	owned := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if l.Quantity > MaxLineQuantity {
			return nil, fmt.Errorf("%w: item %d quantity %d exceeds %d", ErrInvalidInput, l.ItemID, l.Quantity, MaxLineQuantity)
		}
		if l.UnitPriceCents < 0 {
			return nil, ErrInvalidInput
		}
		if l.UnitPriceCents > 0 && int64(l.Quantity) > math.MaxInt64/l.UnitPriceCents {
			return nil, fmt.Errorf("%w: item %d subtotal overflows", ErrInvalidInput, l.ItemID)
		}
		sub := l.SubtotalCents()
		if total > math.MaxInt64-sub {
			return nil, fmt.Errorf("%w: order total overflows", ErrInvalidInput)
		}
		total += sub
		owned = append(owned, l)
	}

	now = now.UTC()
	return &Order{
		BuyerID:          buyerID,
		SellerID:         sellerID,
		Status:           StatusCreated,
		TotalAmountCents: total,
		Currency:         DefaultCurrency,
		Lines:            owned,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// TransitionTo moves the order along a legal edge. An illegal edge leaves the order untouched.
func (o *Order) TransitionTo(next Status, now time.Time) error {
	if !CanTransition(o.Status, next) {
		return &TransitionError{From: o.Status, To: next}
	}
	o.Status = next
	o.touch(now)
	return nil
}

// ForceCancel sets CANCELLED regardless of the transition table.
func (o *Order) ForceCancel(now time.Time) {
	o.Status = StatusCancelled
	o.touch(now)
}

// HoldsStock reports whether the order still has its creation-time reservation.
func (o *Order) HoldsStock() bool {
	return HoldsStock(o.Status)
}

// Holds returns the stock held by the order, one entry per line.
func (o *Order) Holds() []inventory.Hold {
	holds := make([]inventory.Hold, 0, len(o.Lines))
	for _, l := range o.Lines {
		holds = append(holds, inventory.Hold{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return holds
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Lines = append([]Line(nil), o.Lines...)
	return &clone
}

func (o *Order) touch(now time.Time) {
	o.UpdatedAt = now.UTC()
}
