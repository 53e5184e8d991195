//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/postgres/migrations"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/clock"
)

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("orders_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := Open(ctx, dsn, 8)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.Apply(ctx, pool))
	require.NoError(t, migrations.Apply(ctx, pool), "migrations are idempotent")

	s := NewStore(pool, clock.NewFixed(at))
	seed(t, s)
	return s
}

func seed(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Sellers().Upsert(ctx, order.Seller{ID: 1, UserID: 100, DisplayName: "Dosa Corner"}))
	require.NoError(t, s.Items().Upsert(ctx, &inventory.Item{
		ID: 10, SellerID: 1, Name: "Masala Dosa", PriceCents: 500, Available: true,
		AvailableQty: inventory.Qty(3), Tags: []string{"veg"},
	}))
	require.NoError(t, s.Items().Upsert(ctx, &inventory.Item{
		ID: 11, SellerID: 1, Name: "Filter Coffee", PriceCents: 300, Available: true,
	}))
}

func TestReserveToZeroDisablesAndReleaseRestores(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	adj, err := s.Items().Reserve(ctx, 10, 3)
	require.NoError(t, err)
	require.True(t, adj.AvailabilityChanged)
	require.Zero(t, adj.Remaining)

	item, err := s.Items().Get(ctx, 10)
	require.NoError(t, err)
	require.False(t, item.Available)
	require.True(t, item.AutoDisabled)

	_, err = s.Items().Reserve(ctx, 10, 1)
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	adj, err = s.Items().Release(ctx, 10, 2)
	require.NoError(t, err)
	require.True(t, adj.AvailabilityChanged)
	require.Equal(t, 2, adj.Remaining)

	item, err = s.Items().Get(ctx, 10)
	require.NoError(t, err)
	require.True(t, item.Available)
	require.False(t, item.AutoDisabled)
	require.Equal(t, []string{"veg"}, item.Tags)
}

func TestUntrackedAndMissingItems(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	adj, err := s.Items().Reserve(ctx, 11, 50)
	require.NoError(t, err)
	require.False(t, adj.Tracked)

	_, err = s.Items().Reserve(ctx, 999, 1)
	require.ErrorIs(t, err, inventory.ErrNotFound)
	_, err = s.Items().Release(ctx, 999, 1)
	require.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestConcurrentReserveOfLastUnit(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	_, err := s.Items().Reserve(ctx, 10, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.WithTx(ctx, func(ctx context.Context) error {
				_, err := s.Items().Reserve(ctx, 10, 1)
				return err
			})
		}(i)
	}
	wg.Wait()

	var ok, short int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, inventory.ErrInsufficientStock):
			short++
		}
	}
	require.Equal(t, 1, ok)
	require.Equal(t, 1, short)
}

func TestOrderRoundTripAndRollback(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	o, err := order.New(7, 1, []order.Line{
		{ItemID: 10, ItemName: "Masala Dosa", UnitPriceCents: 500, Quantity: 2},
		{ItemID: 11, ItemName: "Filter Coffee", UnitPriceCents: 300, Quantity: 1},
	}, at)
	require.NoError(t, err)
	require.NoError(t, s.Orders().Insert(ctx, o))
	require.NotZero(t, o.ID)

	got, err := s.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1300), got.TotalAmountCents)
	require.Equal(t, order.DefaultCurrency, got.Currency)
	require.Len(t, got.Lines, 2)
	require.Equal(t, "Masala Dosa", got.Lines[0].ItemName)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(ctx context.Context) error {
		locked, err := s.Orders().GetForUpdate(ctx, o.ID)
		if err != nil {
			return err
		}
		if err := locked.TransitionTo(order.StatusPaid, at); err != nil {
			return err
		}
		if err := s.Orders().Update(ctx, locked); err != nil {
			return err
		}
		if _, err := s.Items().Reserve(ctx, 10, 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err = s.Orders().Get(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, order.StatusCreated, got.Status)
	item, err := s.Items().Get(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 3, *item.AvailableQty)

	_, err = s.Orders().Get(ctx, 12345)
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestSellerQueries(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		o, err := order.New(7, 1, []order.Line{{ItemID: 11, ItemName: "Filter Coffee", UnitPriceCents: 300, Quantity: 1}},
			at.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		require.NoError(t, s.Orders().Insert(ctx, o))
		if i == 0 {
			require.NoError(t, o.TransitionTo(order.StatusPaid, at))
			require.NoError(t, s.Orders().Update(ctx, o))
		}
	}

	all, err := s.Orders().ListBySeller(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.True(t, all[0].CreatedAt.After(all[2].CreatedAt), "newest first")

	paid, err := s.Orders().ListBySeller(ctx, 1, order.StatusPaid)
	require.NoError(t, err)
	require.Len(t, paid, 1)

	counts, err := s.Orders().CountBySeller(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, counts[order.StatusCreated])
	require.Equal(t, 1, counts[order.StatusPaid])

	byBuyer, err := s.Orders().ListByBuyer(ctx, 7)
	require.NoError(t, err)
	require.Len(t, byBuyer, 3)

	_, err = s.Sellers().Get(ctx, 42)
	require.ErrorIs(t, err, order.ErrNotFound)
	err = s.Sellers().Upsert(ctx, order.Seller{ID: 2, UserID: 100})
	require.ErrorIs(t, err, order.ErrConflict)
}
