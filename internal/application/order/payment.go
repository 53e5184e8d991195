package order

import (
	"context"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"

	"go.opentelemetry.io/otel/attribute"
)

const (
	useCaseMarkPaid        = "order.mark_paid"
	useCaseCancelOnFailure = "order.cancel_after_payment_failure"

	// Reasons reported when a payment outcome changes nothing.
	ReasonDuplicate        = "DUPLICATE"
	ReasonIgnored          = "IGNORED"
	ReasonAlreadyCancelled = "ALREADY_CANCELLED"
)

type PaymentOutcomeInput struct {
	OrderID int64
}

// PaymentOutcomeResult reports whether a payment outcome changed the order.
// Applied is false for duplicates and late arrivals, which are absorbed rather than failed.
type PaymentOutcomeResult struct {
	Applied       bool
	Reason        string
	Status        domain.Status
	StockReleased bool
}

// MarkPaidUseCase applies a successful payment: CREATED -> PAID.
type MarkPaidUseCase struct {
	deps Deps
	in   instruments
}

var _ application.UseCase[PaymentOutcomeInput, *PaymentOutcomeResult] = (*MarkPaidUseCase)(nil)

func NewMarkPaidUseCase(deps Deps) *MarkPaidUseCase {
	return &MarkPaidUseCase{deps: deps, in: newInstruments(deps.Tel)}
}

func (uc *MarkPaidUseCase) Execute(ctx context.Context, cmd PaymentOutcomeInput) (_ *PaymentOutcomeResult, err error) {
	ctx, r := uc.in.begin(ctx, useCaseMarkPaid, "MarkPaid",
		attribute.Int64("order.id", cmd.OrderID),
	)
	r.orderID = cmd.OrderID
	defer func() { uc.in.finish(r, err) }()

	var (
		entity *domain.Order
		res    = &PaymentOutcomeResult{}
	)
	err = uc.deps.Tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := uc.deps.Orders.GetForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		res.Status = o.Status
		if !domain.CanTransition(o.Status, domain.StatusPaid) {
			res.Reason = ReasonIgnored
			if o.Status == domain.StatusPaid {
				res.Reason = ReasonDuplicate
			}
			return nil
		}

		if err := o.TransitionTo(domain.StatusPaid, uc.deps.Clock.Now()); err != nil {
			return err
		}
		if err := uc.deps.Orders.Update(ctx, o); err != nil {
			return wrapRepositoryError(err)
		}
		entity = o
		res.Applied = true
		res.Status = o.Status
		return nil
	})
	if err != nil {
		r.fail(statusFor(err))
		return nil, err
	}
	if !res.Applied {
		r.status = res.Reason
		return res, nil
	}

	uc.in.publish(ctx, r, uc.deps.Publisher, newEvent(uc.deps, domain.TopicPaid, entity))
	return res, nil
}

// CancelAfterPaymentFailureUseCase applies a failed payment. The payment processor is
// authoritative, so the order is cancelled from any non-cancelled state.
type CancelAfterPaymentFailureUseCase struct {
	deps Deps
	in   instruments
}

var _ application.UseCase[PaymentOutcomeInput, *PaymentOutcomeResult] = (*CancelAfterPaymentFailureUseCase)(nil)

func NewCancelAfterPaymentFailureUseCase(deps Deps) *CancelAfterPaymentFailureUseCase {
	return &CancelAfterPaymentFailureUseCase{deps: deps, in: newInstruments(deps.Tel)}
}

func (uc *CancelAfterPaymentFailureUseCase) Execute(ctx context.Context, cmd PaymentOutcomeInput) (_ *PaymentOutcomeResult, err error) {
	ctx, r := uc.in.begin(ctx, useCaseCancelOnFailure, "CancelAfterPaymentFailure",
		attribute.Int64("order.id", cmd.OrderID),
	)
	r.orderID = cmd.OrderID
	defer func() { uc.in.finish(r, err) }()

	var (
		entity *domain.Order
		adjs   []dominv.Adjustment
		res    = &PaymentOutcomeResult{}
	)
	err = uc.deps.Tx.WithTx(ctx, func(ctx context.Context) error {
		o, err := uc.deps.Orders.GetForUpdate(ctx, cmd.OrderID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		res.Status = o.Status
		if o.Status == domain.StatusCancelled {
			res.Reason = ReasonAlreadyCancelled
			return nil
		}

		// Past CONFIRMED the stock has gone to fulfilment and is not returned.
		if o.HoldsStock() {
			adjs, err = releaseHolds(ctx, uc.deps.Inventory, o)
			if err != nil {
				return err
			}
			res.StockReleased = true
		}
		o.ForceCancel(uc.deps.Clock.Now())
		if err := uc.deps.Orders.Update(ctx, o); err != nil {
			return wrapRepositoryError(err)
		}
		entity = o
		res.Applied = true
		res.Status = o.Status
		return nil
	})
	if err != nil {
		r.fail(statusFor(err))
		return nil, err
	}
	if !res.Applied {
		r.status = res.Reason
		return res, nil
	}

	uc.in.publish(ctx, r, uc.deps.Publisher, newEvent(uc.deps, domain.TopicCancelled, entity))
	uc.deps.Inventory.Project(ctx, adjs)
	return res, nil
}
