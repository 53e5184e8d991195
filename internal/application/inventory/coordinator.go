package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	inventoryService = "inventory-coordinator"
	spanPrefix       = "Inventory."
	projectionPeer   = "catalog"
	publishTimeout   = 300 * time.Millisecond

	opReserve = "reserve"
	opRelease = "release"
)

// Coordinator applies stock reservations and releases for order commands and publishes
// catalog projections for items whose availability flipped.
//
// Reserve and Release must be called inside the caller's transaction; Project must be
// called after it commits.
type Coordinator struct {
	items     dominv.Repository
	sellers   domorder.SellerRepository
	projector dominv.Projector

	log          observability.Logger
	tracer       observability.Tracer
	adjCounter   observability.Counter   // inventory_adjustments_total{op,outcome}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewCoordinator(
	items dominv.Repository,
	sellers domorder.SellerRepository,
	projector dominv.Projector,
	tel observability.Observability,
) *Coordinator {
	tracer, logger, metrics := observability.Resolve(tel)
	return &Coordinator{
		items:        items,
		sellers:      sellers,
		projector:    projector,
		log:          logger.With(observability.F("service", inventoryService)),
		tracer:       tracer,
		adjCounter:   metrics.Counter(observability.MStockAdjustments),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Item loads a catalog item for validation.
func (c *Coordinator) Item(ctx context.Context, itemID int64) (*dominv.Item, error) {
	return c.items.Get(ctx, itemID)
}

// Reserve takes quantity units of a tracked item. Untracked items are left alone.
func (c *Coordinator) Reserve(ctx context.Context, itemID int64, quantity int) (dominv.Adjustment, error) {
	adj, err := c.items.Reserve(ctx, itemID, quantity)
	c.count(opReserve, err)
	if err != nil {
		return adj, fmt.Errorf("inventory: reserve item %d: %w", itemID, err)
	}
	if adj.AvailabilityChanged {
		logctx.FromOr(ctx, c.log).Info("item_auto_disabled",
			observability.F("item_id", itemID),
		)
	}
	return adj, nil
}

// Release gives quantity units back. A vanished item is reported to the operator.
func (c *Coordinator) Release(ctx context.Context, itemID int64, quantity int) (dominv.Adjustment, error) {
	adj, err := c.items.Release(ctx, itemID, quantity)
	c.count(opRelease, err)
	if err != nil {
		if errors.Is(err, dominv.ErrNotFound) {
			logctx.FromOr(ctx, c.log).Error("catalog_item_vanished",
				observability.F("item_id", itemID),
				observability.F("quantity", quantity),
				observability.F("operator_alert", true),
			)
		}
		return adj, fmt.Errorf("inventory: release item %d: %w", itemID, err)
	}
	if adj.AvailabilityChanged {
		logctx.FromOr(ctx, c.log).Info("item_auto_enabled",
			observability.F("item_id", itemID),
		)
	}
	return adj, nil
}

// ReserveLines reserves every hold, stopping at the first failure. The caller's transaction
// undoes the reservations already taken.
func (c *Coordinator) ReserveLines(ctx context.Context, holds []dominv.Hold) ([]dominv.Adjustment, error) {
	adjs := make([]dominv.Adjustment, 0, len(holds))
	for _, h := range holds {
		adj, err := c.Reserve(ctx, h.ItemID, h.Quantity)
		if err != nil {
			return nil, err
		}
		adjs = append(adjs, adj)
	}
	return adjs, nil
}

func (c *Coordinator) ReleaseLines(ctx context.Context, holds []dominv.Hold) ([]dominv.Adjustment, error) {
	adjs := make([]dominv.Adjustment, 0, len(holds))
	for _, h := range holds {
		adj, err := c.Release(ctx, h.ItemID, h.Quantity)
		if err != nil {
			return nil, err
		}
		adjs = append(adjs, adj)
	}
	return adjs, nil
}

// Project publishes catalog.item.upserted for each adjustment that flipped availability.
// Failures are logged and counted; they never fail the command that caused them.
func (c *Coordinator) Project(ctx context.Context, adjs []dominv.Adjustment) {
	if c.projector == nil {
		return
	}
	for _, adj := range adjs {
		if !adj.AvailabilityChanged {
			continue
		}
		c.projectItem(ctx, adj.ItemID)
	}
}

func (c *Coordinator) projectItem(ctx context.Context, itemID int64) {
	ctx, span := c.tracer.Start(ctx, spanPrefix+"ProjectItem",
		attribute.Int64("item.id", itemID),
	)
	logger := logctx.FromOr(ctx, c.log).With(observability.F("item_id", itemID))

	err := c.publishProjection(ctx, itemID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "PROJECTION_FAILED")
		logger.Warn("catalog_projection_failed", observability.F("error", err.Error()))
	} else {
		span.SetStatus(codes.Ok, "OK")
		logger.Debug("catalog_projection_published")
	}
	span.End()
}

func (c *Coordinator) publishProjection(ctx context.Context, itemID int64) error {
	item, err := c.items.Get(ctx, itemID)
	if err != nil {
		return fmt.Errorf("load item: %w", err)
	}
	var sellerName string
	if c.sellers != nil {
		seller, err := c.sellers.Get(ctx, item.SellerID)
		if err != nil {
			return fmt.Errorf("load seller: %w", err)
		}
		sellerName = seller.DisplayName
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	start := time.Now()
	err = c.projector.PublishItemUpserted(pubCtx, dominv.NewItemUpsertedEvent(item, sellerName))
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.extCounter.Add(1,
		observability.L("peer", projectionPeer),
		observability.L("endpoint", dominv.TopicItemUpserted),
		observability.L("outcome", outcome),
	)
	c.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", projectionPeer),
		observability.L("endpoint", dominv.TopicItemUpserted),
	)
	return err
}

func (c *Coordinator) count(op string, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, dominv.ErrInsufficientStock):
		outcome = "insufficient"
	case errors.Is(err, dominv.ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	c.adjCounter.Add(1,
		observability.L("op", op),
		observability.L("outcome", outcome),
	)
}
