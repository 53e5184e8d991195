package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"

	"go.opentelemetry.io/otel/attribute"
)

const useCaseOrderUpdateStatus = "order.update_status"

type UpdateStatusInput struct {
	OrderID int64
	Target  domain.Status
	Actor   Actor
}

type UpdateStatusResult struct {
	Order    *domain.Order
	Previous domain.Status
}

// UpdateStatusUseCase moves an order along the transition table on behalf of its buyer or seller.
type UpdateStatusUseCase struct {
	deps Deps
	in   instruments
}

var _ application.UseCase[UpdateStatusInput, *UpdateStatusResult] = (*UpdateStatusUseCase)(nil)

func NewUpdateStatusUseCase(deps Deps) *UpdateStatusUseCase {
	return &UpdateStatusUseCase{deps: deps, in: newInstruments(deps.Tel)}
}

func (uc *UpdateStatusUseCase) Execute(ctx context.Context, cmd UpdateStatusInput) (_ *UpdateStatusResult, err error) {
	ctx, r := uc.in.begin(ctx, useCaseOrderUpdateStatus, "UpdateStatus",
		attribute.Int64("order.id", cmd.OrderID),
		attribute.String("order.target_status", string(cmd.Target)),
		attribute.Bool("actor.is_seller", cmd.Actor.IsSeller),
	)
	r.orderID = cmd.OrderID
	defer func() { uc.in.finish(r, err) }()

	if _, ok := domain.ParseStatus(string(cmd.Target)); !ok {
		r.fail("INVALID_INPUT")
		return nil, domain.ErrInvalidInput
	}

	var (
		entity   *domain.Order
		previous domain.Status
		adjs     []dominv.Adjustment
	)
	err = uc.deps.Tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := uc.deps.Orders.GetForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if err := authorize(ctx, uc.deps.Sellers, o, cmd.Actor); err != nil {
			return err
		}

		previous = o.Status
		if err := o.TransitionTo(cmd.Target, uc.deps.Clock.Now()); err != nil {
			return err
		}
		if cmd.Target == domain.StatusCancelled && domain.HoldsStock(previous) {
			adjs, err = releaseHolds(ctx, uc.deps.Inventory, o)
			if err != nil {
				return err
			}
		}
		if err := uc.deps.Orders.Update(ctx, o); err != nil {
			return wrapRepositoryError(err)
		}
		entity = o
		return nil
	})
	if err != nil {
		r.fail(statusFor(err))
		return nil, err
	}

	if topic, ok := domain.StatusTopic(entity.Status); ok {
		uc.in.publish(ctx, r, uc.deps.Publisher, newEvent(uc.deps, topic, entity))
	}
	uc.deps.Inventory.Project(ctx, adjs)

	return &UpdateStatusResult{Order: entity, Previous: previous}, nil
}
