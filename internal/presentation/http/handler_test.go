package httppresentation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-orders/internal/application/feed"
	appinventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/idempotency"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/clock"
)

const (
	buyer      = "7"
	sellerUser = "100"
)

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return "evt-" + strconv.Itoa(s.n)
}

// feedPublisher feeds published events straight into the timeline worker.
type feedPublisher struct{ w *feed.Worker }

func (p feedPublisher) Publish(ctx context.Context, e domoutbox.Event) error {
	return p.w.Handle(ctx, e)
}

func newServer(t *testing.T) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	clk := clock.NewFixed(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	store := memory.NewStore(clk)
	require.NoError(t, store.Sellers().Upsert(ctx, domorder.Seller{ID: 1, UserID: 100, DisplayName: "Dosa Corner"}))
	require.NoError(t, store.Items().Upsert(ctx, &dominv.Item{
		ID: 10, SellerID: 1, PriceCents: 500, Available: true, AvailableQty: dominv.Qty(3), Name: "Masala Dosa",
	}))

	reg := prometheus.NewRegistry()
	counters, histograms := prometrics.New(reg, "", "").Standard()
	tel := infraobs.New(nil, nil, counters, histograms)

	feedStore := memory.NewFeedStore()
	feedWorker := feed.NewWorker(nil, idempotency.NewMemoryStore(clk, time.Hour), feedStore, tel)

	deps := apporder.Deps{
		Tx:        store,
		Orders:    store.Orders(),
		Sellers:   store.Sellers(),
		Inventory: appinventory.NewCoordinator(store.Items(), store.Sellers(), nil, tel),
		Publisher: feedPublisher{w: feedWorker},
		IDs:       &seqIDs{},
		Clock:     clk,
		Tel:       tel,
	}
	h := NewHandler(Deps{
		Create:       apporder.NewCreateOrderUseCase(deps),
		UpdateStatus: apporder.NewUpdateStatusUseCase(deps),
		Queries:      apporder.NewQueries(store.Orders(), store.Sellers(), nil),
		Feed:         feedStore,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Tel:          tel,
	})
	return h.Router(), reg
}

func do(t *testing.T, r http.Handler, method, path, actor, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(headerActorID, actor)
	}
	if role != "" {
		req.Header.Set(headerActorRole, role)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

const twoDosas = `{"sellerId":1,"lines":[{"itemId":10,"quantity":2,"unitPriceCents":500}],"totalCents":1000}`

func TestCreateAndReadOrder(t *testing.T) {
	r, _ := newServer(t)

	rec := do(t, r, http.MethodPost, "/orders", buyer, "", twoDosas)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[orderResponse](t, rec)
	require.Equal(t, domorder.StatusCreated, created.Status)
	require.EqualValues(t, 1000, created.TotalAmountCents)
	require.Equal(t, "INR", created.Currency)
	require.Len(t, created.Lines, 1)
	require.Equal(t, "Masala Dosa", created.Lines[0].ItemName)

	path := "/orders/" + strconv.FormatInt(created.ID, 10)
	rec = do(t, r, http.MethodGet, path, buyer, "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, path, sellerUser, roleSeller, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, r, http.MethodGet, path, "8", "", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, r, http.MethodGet, "/orders/999", buyer, "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, r, http.MethodGet, "/buyers/7/orders", buyer, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]orderResponse](t, rec), 1)

	rec = do(t, r, http.MethodGet, "/buyers/8/orders", buyer, "", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateOrderErrors(t *testing.T) {
	r, _ := newServer(t)

	tests := []struct {
		name   string
		actor  string
		role   string
		body   string
		status int
		code   string
	}{
		{"no actor", "", "", twoDosas, http.StatusUnauthorized, "UNAUTHENTICATED"},
		{"seller cannot buy", sellerUser, roleSeller, twoDosas, http.StatusForbidden, "FORBIDDEN"},
		{"malformed", buyer, "", `{`, http.StatusBadRequest, "BAD_REQUEST"},
		{"no lines", buyer, "", `{"sellerId":1,"lines":[],"totalCents":0}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"total mismatch", buyer, "", `{"sellerId":1,"lines":[{"itemId":10,"quantity":2,"unitPriceCents":500}],"totalCents":900}`, http.StatusUnprocessableEntity, "TOTAL_MISMATCH"},
		{"price changed", buyer, "", `{"sellerId":1,"lines":[{"itemId":10,"quantity":1,"unitPriceCents":450}],"totalCents":450}`, http.StatusUnprocessableEntity, "PRICE_CHANGED"},
		{"insufficient", buyer, "", `{"sellerId":1,"lines":[{"itemId":10,"quantity":4,"unitPriceCents":500}],"totalCents":2000}`, http.StatusConflict, "INSUFFICIENT_STOCK"},
		{"unknown seller", buyer, "", `{"sellerId":9,"lines":[{"itemId":10,"quantity":1,"unitPriceCents":500}],"totalCents":500}`, http.StatusNotFound, "NOT_FOUND"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/orders", tc.actor, tc.role, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestUpdateStatusAndTimeline(t *testing.T) {
	r, _ := newServer(t)

	rec := do(t, r, http.MethodPost, "/orders", buyer, "", twoDosas)
	require.Equal(t, http.StatusCreated, rec.Code)
	path := "/orders/" + strconv.FormatInt(decode[orderResponse](t, rec).ID, 10)

	rec = do(t, r, http.MethodPatch, path+"/status", sellerUser, roleSeller, `{"status":"SHIPPED"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, r, http.MethodPatch, path+"/status", sellerUser, roleSeller, `{"status":"READY"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "STATE_VIOLATION", decode[map[string]string](t, rec)["error"])

	rec = do(t, r, http.MethodPatch, path+"/status", "200", roleSeller, `{"status":"CANCELLED"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, r, http.MethodPatch, path+"/status", buyer, "", `{"status":"CANCELLED"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[updateStatusResponse](t, rec)
	require.Equal(t, domorder.StatusCancelled, res.Status)
	require.Equal(t, domorder.StatusCreated, res.PreviousStatus)

	rec = do(t, r, http.MethodGet, path+"/timeline", buyer, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	timeline := decode[struct {
		Entries []feed.Entry `json:"entries"`
	}](t, rec)
	require.Len(t, timeline.Entries, 2)
	require.Equal(t, domorder.TopicCreated, timeline.Entries[0].Topic)
	require.Equal(t, domorder.TopicCancelled, timeline.Entries[1].Topic)
}

func TestSellerViews(t *testing.T) {
	r, _ := newServer(t)
	require.Equal(t, http.StatusCreated, do(t, r, http.MethodPost, "/orders", buyer, "", twoDosas).Code)

	rec := do(t, r, http.MethodGet, "/sellers/1/orders", sellerUser, roleSeller, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decode[[]orderResponse](t, rec), 1)

	rec = do(t, r, http.MethodGet, "/sellers/1/orders/pending", sellerUser, roleSeller, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]orderResponse](t, rec))

	rec = do(t, r, http.MethodGet, "/sellers/1/stats", sellerUser, roleSeller, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, apporder.SellerStats{}, decode[apporder.SellerStats](t, rec))

	rec = do(t, r, http.MethodGet, "/sellers/1/stats", buyer, "", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthEchoesRequestIDAndCountsRequests(t *testing.T) {
	r, reg := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "req-1", rec.Header().Get(headerRequestID))

	rec = do(t, r, http.MethodGet, "/health", "", "", "")
	require.NotEmpty(t, rec.Header().Get(headerRequestID))

	n, err := testutil.GatherAndCount(reg, "http_requests_total")
	require.NoError(t, err)
	require.Equal(t, 1, n, "both requests share one route/status series")

	rec = do(t, r, http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}
