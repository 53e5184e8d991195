package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Zhima-Mochi/minishop-orders/internal/application/feed"
	appinventory "github.com/Zhima-Mochi/minishop-orders/internal/application/inventory"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/config"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/id"
	infraobs "github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/telemetry"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/clock"
	httppresentation "github.com/Zhima-Mochi/minishop-orders/internal/presentation/http"
	workerpresentation "github.com/Zhima-Mochi/minishop-orders/internal/presentation/worker"
)

func main() {
	envName := getenvDefault("APP_ENV", "dev")
	cfg, err := config.Load(getenvDefault("CONFIG_DIR", "configs"), envName)
	if err != nil {
		zap.L().Fatal("config_load_failed", zap.Error(err))
	}

	baseLogger, err := zaplogger.New(zaplogger.Options{
		Service: cfg.App.Name,
		Env:     cfg.App.Env,
		Level:   cfg.App.LogLevel,
		File:    cfg.App.LogFile,
	})
	if err != nil {
		zap.L().Fatal("logger_init_failed", zap.Error(err))
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger.Zap())
	systemLogger := baseLogger.With(observability.F("component", "system"))

	if err := run(cfg, baseLogger, systemLogger); err != nil {
		systemLogger.Error("service_exit", observability.F("error", err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, baseLogger *zaplogger.Logger, systemLogger observability.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, shutdownTracing, err := telemetry.Setup(ctx, telemetry.Options{
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Env,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	}, systemLogger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	counters, histograms := prometrics.New(reg, "", "").Standard()
	tel := infraobs.New(oteltrace.New(tp, cfg.App.Name), baseLogger, counters, histograms)

	clk := clock.System()

	store, err := openStorage(ctx, cfg, clk, systemLogger)
	if err != nil {
		return err
	}
	defer store.close()

	if cfg.Seed.File != "" {
		if err := applySeed(ctx, cfg.Seed.File, store); err != nil {
			return err
		}
		systemLogger.Info("seed_applied", observability.F("file", cfg.Seed.File))
	}

	brk, err := openBroker(cfg, tel)
	if err != nil {
		return err
	}
	defer brk.close()

	claims, closeClaims, err := openClaims(ctx, cfg, clk)
	if err != nil {
		return err
	}
	defer closeClaims()

	coordinator := appinventory.NewCoordinator(store.items, store.sellers, brk.projector, tel)
	deps := apporder.Deps{
		Tx:        store.tx,
		Orders:    store.orders,
		Sellers:   store.sellers,
		Inventory: coordinator,
		Publisher: brk.publisher,
		IDs:       id.UUID{},
		Clock:     clk,
		Tel:       tel,
	}
	createOrder := apporder.NewCreateOrderUseCase(deps)
	updateStatus := apporder.NewUpdateStatusUseCase(deps)
	markPaid := apporder.NewMarkPaidUseCase(deps)
	cancelAfterFailure := apporder.NewCancelAfterPaymentFailureUseCase(deps)
	queries := apporder.NewQueries(store.orders, store.sellers, baseLogger)

	paymentWorker := apporder.NewPaymentWorker(
		workerpresentation.NewSubscriber(brk.paymentSub, "order-payment-worker", tel),
		markPaid, cancelAfterFailure, tel,
	)
	paymentWorker.Start()

	feedStore := store.feed
	feedWorker := feed.NewWorker(
		workerpresentation.NewSubscriber(brk.feedSub, "order-feed-worker", tel),
		claims, feedStore, tel,
	)
	feedWorker.Start()

	if err := brk.start(ctx); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler := httppresentation.NewHandler(httppresentation.Deps{
		Create:       createOrder,
		UpdateStatus: updateStatus,
		Queries:      queries,
		Feed:         feedStore,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Tel:          tel,
	})
	server := &http.Server{
		Addr:         cfg.App.HTTPAddr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		systemLogger.Info("http_server_start",
			observability.F("addr", server.Addr),
			observability.F("storage", cfg.Storage.Driver),
			observability.F("broker", cfg.Broker.Driver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			systemLogger.Error("http_server_error", observability.F("error", err))
		}
	}

	shutdownTimeout := cfg.HTTP.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Error("http_server_shutdown_error", observability.F("error", err))
	} else {
		systemLogger.Info("http_server_stopped")
	}
	stop()
	if err := brk.drain(shutdownCtx); err != nil {
		systemLogger.Warn("broker_drain_incomplete", observability.F("error", err))
	}
	return nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
