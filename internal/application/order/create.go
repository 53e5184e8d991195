package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseOrderCreate = "order.create"

type CreateLine struct {
	ItemID                 int64
	Quantity               int
	ExpectedUnitPriceCents int64
}

type CreateOrderInput struct {
	BuyerID            int64
	SellerID           int64
	Lines              []CreateLine
	ExpectedTotalCents int64
}

type CreateOrderResult struct {
	Order *domain.Order
}

// CreateOrderUseCase validates a basket against the live catalog, reserves its stock and
// records the order in CREATED, all in one transaction.
type CreateOrderUseCase struct {
	deps Deps
	in   instruments
}

var _ application.UseCase[CreateOrderInput, *CreateOrderResult] = (*CreateOrderUseCase)(nil)

func NewCreateOrderUseCase(deps Deps) *CreateOrderUseCase {
	return &CreateOrderUseCase{deps: deps, in: newInstruments(deps.Tel)}
}

func (uc *CreateOrderUseCase) Execute(ctx context.Context, cmd CreateOrderInput) (_ *CreateOrderResult, err error) {
	ctx, r := uc.in.begin(ctx, useCaseOrderCreate, "CreateOrder",
		attribute.Int64("order.buyer_id", cmd.BuyerID),
		attribute.Int64("order.seller_id", cmd.SellerID),
		attribute.Int("order.lines", len(cmd.Lines)),
	)
	defer func() { uc.in.finish(r, err) }()

	if err := validateCreate(cmd); err != nil {
		r.fail("INVALID_INPUT")
		return nil, err
	}

	var (
		entity *domain.Order
		adjs   []dominv.Adjustment
	)
	err = uc.deps.Tx.WithTx(ctx, func(ctx context.Context) error {
		seller, err := uc.deps.Sellers.Get(ctx, cmd.SellerID)
		if err != nil {
			return wrapRepositoryError(err)
		}

		lines := make([]domain.Line, 0, len(cmd.Lines))
		holds := make([]dominv.Hold, 0, len(cmd.Lines))
		for _, l := range cmd.Lines {
			item, err := uc.checkItem(ctx, seller.ID, l)
			if err != nil {
				return err
			}
			holds = append(holds, dominv.Hold{ItemID: item.ID, Quantity: l.Quantity})
			lines = append(lines, domain.Line{
				ItemID:         item.ID,
				ItemName:       item.Name,
				UnitPriceCents: item.PriceCents,
				Quantity:       l.Quantity,
			})
		}

		// Reservations taken before a failure are undone with the transaction.
		adjs, err = uc.deps.Inventory.ReserveLines(ctx, holds)
		if err != nil {
			if errors.Is(err, dominv.ErrInsufficientStock) {
				return err
			}
			return wrapRepositoryError(err)
		}

		o, err := domain.New(cmd.BuyerID, seller.ID, lines, uc.deps.Clock.Now())
		if err != nil {
			return err
		}
		if o.TotalAmountCents != cmd.ExpectedTotalCents {
			return fmt.Errorf("%w: expected %d, computed %d", domain.ErrTotalMismatch, cmd.ExpectedTotalCents, o.TotalAmountCents)
		}
		if err := uc.deps.Orders.Insert(ctx, o); err != nil {
			return wrapRepositoryError(err)
		}
		entity = o
		return nil
	})
	if err != nil {
		r.fail(statusFor(err))
		return nil, err
	}
	r.orderID = entity.ID

	uc.in.publish(ctx, r, uc.deps.Publisher, newEvent(uc.deps, domain.TopicCreated, entity))
	uc.deps.Inventory.Project(ctx, adjs)

	return &CreateOrderResult{Order: entity}, nil
}

func (uc *CreateOrderUseCase) checkItem(ctx context.Context, sellerID int64, l CreateLine) (*dominv.Item, error) {
	item, err := uc.deps.Inventory.Item(ctx, l.ItemID)
	if err != nil {
		if errors.Is(err, dominv.ErrNotFound) {
			return nil, fmt.Errorf("%w: item %d", domain.ErrNotFound, l.ItemID)
		}
		return nil, wrapRepositoryError(err)
	}
	if item.SellerID != sellerID {
		return nil, fmt.Errorf("%w: item %d is not sold by seller %d", domain.ErrNotAvailable, item.ID, sellerID)
	}
	if !item.Available {
		return nil, fmt.Errorf("%w: item %d", domain.ErrNotAvailable, item.ID)
	}
	if item.PriceCents != l.ExpectedUnitPriceCents {
		return nil, fmt.Errorf("%w: item %d now costs %d", domain.ErrPriceChanged, item.ID, item.PriceCents)
	}
	return item, nil
}

func validateCreate(cmd CreateOrderInput) error {
	if cmd.BuyerID <= 0 || cmd.SellerID <= 0 {
		return fmt.Errorf("%w: buyer and seller are required", domain.ErrInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return domain.ErrNoLines
	}
	for _, l := range cmd.Lines {
		if l.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		if l.Quantity > domain.MaxLineQuantity {
			return fmt.Errorf("%w: item %d quantity %d exceeds %d", domain.ErrInvalidInput, l.ItemID, l.Quantity, domain.MaxLineQuantity)
		}
	}
	return nil
}
