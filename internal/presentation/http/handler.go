package httppresentation

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Zhima-Mochi/minishop-orders/internal/application"
	"github.com/Zhima-Mochi/minishop-orders/internal/application/feed"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

const (
	headerActorID   = "X-Actor-ID"
	headerActorRole = "X-Actor-Role"
	roleSeller      = "seller"

	commandTimeout = 3 * time.Second
	queryTimeout   = 2 * time.Second
)

type Deps struct {
	Create       application.UseCase[apporder.CreateOrderInput, *apporder.CreateOrderResult]
	UpdateStatus application.UseCase[apporder.UpdateStatusInput, *apporder.UpdateStatusResult]
	Queries      *apporder.Queries
	// Feed is optional; without it the timeline route is not registered.
	Feed feed.Store
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Tel     observability.Observability
}

// Handler is a thin command ingress. Caller identity arrives in X-Actor-ID / X-Actor-Role,
// set by the gateway that authenticated the request.
type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{deps: deps}
}

func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(ObservabilityMiddleware(h.deps.Tel), gin.Recovery())

	r.GET("/health", h.handleHealth)
	if h.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.deps.Metrics))
	}

	authed := r.Group("/", requireActor())
	authed.POST("/orders", h.handleCreateOrder)
	authed.PATCH("/orders/:id/status", h.handleUpdateStatus)
	authed.GET("/orders/:id", h.handleGetOrder)
	if h.deps.Feed != nil {
		authed.GET("/orders/:id/timeline", h.handleTimeline)
	}
	authed.GET("/buyers/:id/orders", h.handleBuyerOrders)
	authed.GET("/sellers/:id/orders", h.handleSellerOrders)
	authed.GET("/sellers/:id/orders/pending", h.handlePendingSellerOrders)
	authed.GET("/sellers/:id/stats", h.handleSellerStats)
	return r
}

type createLineRequest struct {
	ItemID         int64 `json:"itemId" binding:"required"`
	Quantity       int   `json:"quantity"`
	UnitPriceCents int64 `json:"unitPriceCents"`
}

type createOrderRequest struct {
	SellerID   int64               `json:"sellerId" binding:"required"`
	Lines      []createLineRequest `json:"lines"`
	TotalCents int64               `json:"totalCents"`
}

func (h *Handler) handleCreateOrder(c *gin.Context) {
	actor := actorFrom(c)
	if actor.IsSeller {
		writeError(c, http.StatusForbidden, "FORBIDDEN", "sellers cannot place orders")
		return
	}
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	lines := make([]apporder.CreateLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, apporder.CreateLine{
			ItemID:                 l.ItemID,
			Quantity:               l.Quantity,
			ExpectedUnitPriceCents: l.UnitPriceCents,
		})
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	res, err := h.deps.Create.Execute(ctx, apporder.CreateOrderInput{
		BuyerID:            actor.ID,
		SellerID:           req.SellerID,
		Lines:              lines,
		ExpectedTotalCents: req.TotalCents,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(res.Order))
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type updateStatusResponse struct {
	orderResponse
	PreviousStatus domorder.Status `json:"previousStatus"`
}

func (h *Handler) handleUpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	target, known := domorder.ParseStatus(req.Status)
	if !known {
		writeError(c, http.StatusBadRequest, "INVALID_INPUT", "unknown status "+strconv.Quote(req.Status))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	res, err := h.deps.UpdateStatus.Execute(ctx, apporder.UpdateStatusInput{
		OrderID: id,
		Target:  target,
		Actor:   actorFrom(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, updateStatusResponse{
		orderResponse:  toOrderResponse(res.Order),
		PreviousStatus: res.Previous,
	})
}

func (h *Handler) handleGetOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	o, err := h.deps.Queries.GetOrder(ctx, id, actorFrom(c))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

func (h *Handler) handleTimeline(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	if _, err := h.deps.Queries.GetOrder(ctx, id, actorFrom(c)); err != nil {
		writeDomainError(c, err)
		return
	}
	entries, err := h.deps.Feed.Timeline(ctx, id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": id, "entries": entries})
}

func (h *Handler) handleBuyerOrders(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	actor := actorFrom(c)
	if actor.IsSeller || actor.ID != id {
		writeDomainError(c, domorder.ErrUnauthorized)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	orders, err := h.deps.Queries.ListBuyerOrders(ctx, id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, toOrderList(orders))
}

func (h *Handler) handleSellerOrders(c *gin.Context) {
	h.sellerView(c, func(ctx context.Context, sellerID int64) (any, error) {
		orders, err := h.deps.Queries.ListSellerOrders(ctx, sellerID)
		return toOrderList(orders), err
	})
}

func (h *Handler) handlePendingSellerOrders(c *gin.Context) {
	h.sellerView(c, func(ctx context.Context, sellerID int64) (any, error) {
		orders, err := h.deps.Queries.ListPendingSellerOrders(ctx, sellerID)
		return toOrderList(orders), err
	})
}

func (h *Handler) handleSellerStats(c *gin.Context) {
	h.sellerView(c, func(ctx context.Context, sellerID int64) (any, error) {
		return h.deps.Queries.SellerStats(ctx, sellerID)
	})
}

func (h *Handler) sellerView(c *gin.Context, load func(ctx context.Context, sellerID int64) (any, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()

	if err := h.deps.Queries.CheckSellerAccess(ctx, id, actorFrom(c)); err != nil {
		writeDomainError(c, err)
		return
	}
	body, err := load(ctx, id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

const actorKey = "actor"

// requireActor rejects requests without a caller identity.
func requireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.GetHeader(headerActorID), 10, 64)
		if err != nil || id <= 0 {
			writeError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "missing or invalid "+headerActorID)
			c.Abort()
			return
		}
		c.Set(actorKey, apporder.Actor{ID: id, IsSeller: c.GetHeader(headerActorRole) == roleSeller})
		c.Next()
	}
}

func actorFrom(c *gin.Context) apporder.Actor {
	actor, _ := c.MustGet(actorKey).(apporder.Actor)
	return actor
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, "INVALID_INPUT", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{"error": code, "message": msg})
}

func writeDomainError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		writeError(c, status, code, "internal error")
		return
	}
	writeError(c, status, code, err.Error())
}

// errorStatus maps a command or query error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domorder.ErrInvalidInput), errors.Is(err, dominv.ErrInvalidQuantity):
		return http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, domorder.ErrUnauthorized):
		return http.StatusForbidden, "UNAUTHORIZED"
	case errors.Is(err, domorder.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domorder.ErrStateViolation):
		return http.StatusConflict, "STATE_VIOLATION"
	case errors.Is(err, domorder.ErrNotAvailable):
		return http.StatusConflict, "NOT_AVAILABLE"
	case errors.Is(err, dominv.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, domorder.ErrPriceChanged):
		return http.StatusUnprocessableEntity, "PRICE_CHANGED"
	case errors.Is(err, domorder.ErrTotalMismatch):
		return http.StatusUnprocessableEntity, "TOTAL_MISMATCH"
	case errors.Is(err, domorder.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
