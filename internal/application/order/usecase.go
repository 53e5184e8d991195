package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability/logctx"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/clock"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService   = "order-service"
	spanPrefix     = "UC."
	publishPeer    = "broker"
	publishTimeout = 300 * time.Millisecond
)

var (
	ErrConflict   = domain.ErrConflict
	ErrNotFound   = domain.ErrNotFound
	ErrRepository = errors.New("order: repository failure")
	// ErrCatalogCorrupted means an order references a catalog item that no longer exists.
	ErrCatalogCorrupted = errors.New("order: referenced catalog item vanished")
)

// Deps are shared by every order use case.
type Deps struct {
	Tx        TxManager
	Orders    domain.Repository
	Sellers   domain.SellerRepository
	Inventory InventoryPort
	Publisher domoutbox.Publisher
	IDs       IDGenerator
	Clock     clock.Clock
	Tel       observability.Observability
}

// Actor is the authenticated caller of a command. Identity is established upstream.
type Actor struct {
	ID       int64
	IsSeller bool
}

// instruments carries the RED metrics and base logger every use case reports through.
type instruments struct {
	tracer       observability.Tracer
	log          observability.Logger
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func newInstruments(tel observability.Observability) instruments {
	tracer, logger, metrics := observability.Resolve(tel)
	return instruments{
		tracer:       tracer,
		log:          logger.With(observability.F("service", orderService)),
		reqCounter:   metrics.Counter(observability.MUsecaseRequests),
		durHistogram: metrics.Histogram(observability.MUsecaseDuration),
		extCounter:   metrics.Counter(observability.MExternalRequests),
		extHistogram: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// run is the bookkeeping of one use case execution, closed by instruments.finish.
type run struct {
	useCase    string
	span       trace.Span
	log        observability.Logger
	start      time.Time
	outcome    string
	status     string
	orderID    int64
	publishErr error
}

func (in instruments) begin(ctx context.Context, useCase, spanName string, attrs ...attribute.KeyValue) (context.Context, *run) {
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName, attrs...)
	ctx, logger := logctx.Enrich(ctx, in.log, observability.F("use_case", useCase))
	return ctx, &run{
		useCase: useCase,
		span:    span,
		log:     logger,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

func (r *run) fail(status string) {
	r.outcome, r.status = "error", status
}

func (in instruments) finish(r *run, err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.outcome != "error" {
		r.fail("ERROR")
	}

	if err != nil {
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, r.status)
	} else {
		r.span.SetStatus(codes.Ok, r.status)
	}
	if r.orderID != 0 {
		r.span.SetAttributes(attribute.Int64("order.id", r.orderID))
	}
	r.span.End()

	in.reqCounter.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	in.durHistogram.Observe(lat,
		observability.L("use_case", r.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	if r.orderID != 0 {
		fields = append(fields, observability.F("order_id", r.orderID))
	}
	if r.publishErr != nil {
		fields = append(fields, observability.F("event_publish_error", r.publishErr.Error()))
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	r.log.Info("use_case_done", fields...)
}

// publish hands a committed outcome to the broker. It never fails the use case.
func (in instruments) publish(ctx context.Context, r *run, p domoutbox.Publisher, e domoutbox.Event) {
	if p == nil || e == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	start := time.Now()
	err := p.Publish(pubCtx, e)
	outcome := "success"
	if err != nil {
		outcome = "error"
	} else if pubCtx.Err() != nil {
		outcome = "canceled"
		err = pubCtx.Err()
	}
	cancel()

	in.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
	)

	if err != nil {
		r.publishErr = err
		r.status = "EVENT_PUBLISH_FAILED"
		r.span.RecordError(err)
		r.log.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.F("error", err.Error()),
		)
		return
	}
	r.span.AddEvent(e.EventName())
}

func newEvent(d Deps, topic string, o *domain.Order) domain.Event {
	return domain.NewEvent(topic, d.IDs.NewID(), o, d.Clock.Now())
}

// authorize lets the order's seller or its buyer act on it, depending on the actor's role.
func authorize(ctx context.Context, sellers domain.SellerRepository, o *domain.Order, actor Actor) error {
	if actor.IsSeller {
		seller, err := sellers.Get(ctx, o.SellerID)
		if err != nil {
			return wrapRepositoryError(err)
		}
		if seller.UserID != actor.ID {
			return domain.ErrUnauthorized
		}
		return nil
	}
	if o.BuyerID != actor.ID {
		return domain.ErrUnauthorized
	}
	return nil
}

// releaseHolds returns an order's stock. A vanished item is data corruption, not a race.
func releaseHolds(ctx context.Context, inv InventoryPort, o *domain.Order) ([]dominv.Adjustment, error) {
	adjs, err := inv.ReleaseLines(ctx, o.Holds())
	if err != nil {
		if errors.Is(err, dominv.ErrNotFound) {
			return nil, fmt.Errorf("%w: order %d: %w", ErrCatalogCorrupted, o.ID, err)
		}
		return nil, wrapRepositoryError(err)
	}
	return adjs, nil
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, ErrRepository):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}

// statusFor names the failure for logs and span status.
func statusFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, domain.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, domain.ErrStateViolation):
		return "STATE_VIOLATION"
	case errors.Is(err, domain.ErrNotAvailable):
		return "NOT_AVAILABLE"
	case errors.Is(err, domain.ErrPriceChanged):
		return "PRICE_CHANGED"
	case errors.Is(err, dominv.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK"
	case errors.Is(err, domain.ErrTotalMismatch):
		return "TOTAL_MISMATCH"
	case errors.Is(err, ErrCatalogCorrupted):
		return "CATALOG_CORRUPTED"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CONTEXT_CANCELED"
	default:
		return "REPOSITORY_FAILED"
	}
}
