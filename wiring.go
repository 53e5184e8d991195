package main

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Zhima-Mochi/minishop-orders/internal/application/feed"
	apporder "github.com/Zhima-Mochi/minishop-orders/internal/application/order"
	"github.com/Zhima-Mochi/minishop-orders/internal/config"
	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/idempotency"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/postgres/migrations"
	"github.com/Zhima-Mochi/minishop-orders/internal/infrastructure/rabbitmq"
	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/Zhima-Mochi/minishop-orders/internal/pkg/clock"
)

type storage struct {
	tx      apporder.TxManager
	orders  domorder.Repository
	sellers domorder.SellerRepository
	items   dominv.Repository
	feed    feed.Store
	close   func()
}

func openStorage(ctx context.Context, cfg config.Config, clk clock.Clock, logger observability.Logger) (*storage, error) {
	// The timeline is a local read model on every storage driver.
	feedStore := memory.NewFeedStore()

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return nil, err
		}
		if cfg.Postgres.Migrate {
			if err := migrations.Apply(ctx, pool); err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info("postgres_migrated")
		}
		st := postgres.NewStore(pool, clk)
		return &storage{
			tx:      st,
			orders:  st.Orders(),
			sellers: st.Sellers(),
			items:   st.Items(),
			feed:    feedStore,
			close:   pool.Close,
		}, nil
	default:
		st := memory.NewStore(clk)
		return &storage{
			tx:      st,
			orders:  st.Orders(),
			sellers: st.Sellers(),
			items:   st.Items(),
			feed:    feedStore,
			close:   func() {},
		}, nil
	}
}

// applySeed upserts the start-up sellers and catalog items. Items without a quantity
// are untracked; availability defaults to on.
func applySeed(ctx context.Context, path string, st *storage) error {
	seed, err := config.LoadSeed(path)
	if err != nil {
		return err
	}
	for _, sl := range seed.Sellers {
		if err := st.sellers.Upsert(ctx, domorder.Seller{ID: sl.ID, UserID: sl.UserID, DisplayName: sl.DisplayName}); err != nil {
			return fmt.Errorf("seed seller %d: %w", sl.ID, err)
		}
	}
	for _, it := range seed.Items {
		available := true
		if it.Available != nil {
			available = *it.Available
		}
		var qty *int
		if it.Quantity != nil {
			q := *it.Quantity
			qty = &q
		}
		item := &dominv.Item{
			ID:           it.ID,
			SellerID:     it.SellerID,
			PriceCents:   it.PriceCents,
			Available:    available,
			AvailableQty: qty,
			Name:         it.Name,
			Description:  it.Description,
			MenuName:     it.MenuName,
			Tags:         it.Tags,
		}
		if err := st.items.Upsert(ctx, item); err != nil {
			return fmt.Errorf("seed item %d: %w", it.ID, err)
		}
	}
	return nil
}

// broker bundles one transport's producer and consumer sides.
type broker struct {
	publisher  domoutbox.Publisher
	projector  dominv.Projector
	paymentSub domoutbox.Subscriber
	feedSub    domoutbox.Subscriber

	// start begins delivery; handlers must be subscribed first.
	start func(ctx context.Context) error
	// drain stops intake and waits for in-flight deliveries.
	drain func(ctx context.Context) error
	close func()
}

func openBroker(cfg config.Config, tel observability.Observability) (*broker, error) {
	_, logger, _ := observability.Resolve(tel)
	switch cfg.Broker.Driver {
	case config.DriverKafka:
		return openKafka(cfg, tel, logger)
	case config.DriverRabbitMQ:
		return openRabbit(cfg, tel, logger)
	default:
		bus := outbox.NewBus(tel,
			outbox.WithQueueSize(cfg.Outbox.QueueSize),
			outbox.WithConcurrency(cfg.Outbox.Concurrency),
			outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		)
		return &broker{
			publisher:  bus,
			projector:  outbox.Projector{Publisher: bus},
			paymentSub: bus,
			feedSub:    bus,
			start: func(ctx context.Context) error {
				bus.Start(ctx)
				return nil
			},
			drain: bus.Stop,
			close: func() {},
		}, nil
	}
}

func openKafka(cfg config.Config, tel observability.Observability, logger observability.Logger) (*broker, error) {
	kcfg := kafka.Config{
		Brokers:      cfg.Kafka.Brokers,
		GroupID:      cfg.Kafka.GroupID,
		ClientID:     cfg.Kafka.ClientID,
		CatalogTopic: cfg.Kafka.CatalogTopic,
	}
	producer, err := kafka.NewSyncProducer(kcfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	paymentGroup, err := kafka.NewGroup(kcfg)
	if err != nil {
		_ = producer.Close()
		return nil, fmt.Errorf("kafka payment group: %w", err)
	}
	feedCfg := kcfg
	feedCfg.GroupID = kcfg.GroupID + ".feed"
	feedGroup, err := kafka.NewGroup(feedCfg)
	if err != nil {
		_ = producer.Close()
		_ = paymentGroup.Close()
		return nil, fmt.Errorf("kafka feed group: %w", err)
	}

	publisher := kafka.NewPublisher(producer, tel)
	projector := kafka.NewProjector(kafka.NewProjectionWriter(kcfg.Brokers, kcfg.CatalogTopic))
	paymentSub := kafka.NewSubscriber(paymentGroup, tel)
	feedSub := kafka.NewSubscriber(feedGroup, tel)

	done := make(chan struct{}, 2)
	run := func(ctx context.Context, name string, s *kafka.Subscriber) {
		defer func() { done <- struct{}{} }()
		if err := s.Run(ctx); err != nil {
			logger.Error("consumer_stopped", observability.F("consumer", name), observability.F("error", err))
		}
	}

	return &broker{
		publisher:  publisher,
		projector:  projector,
		paymentSub: paymentSub,
		feedSub:    feedSub,
		start: func(ctx context.Context) error {
			go run(ctx, "payments", paymentSub)
			go run(ctx, "feed", feedSub)
			return nil
		},
		drain: func(ctx context.Context) error {
			for i := 0; i < 2; i++ {
				select {
				case <-done:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		},
		close: func() {
			_ = paymentSub.Close()
			_ = feedSub.Close()
			_ = projector.Close()
			_ = publisher.Close()
		},
	}, nil
}

func openRabbit(cfg config.Config, tel observability.Observability, logger observability.Logger) (*broker, error) {
	conn, pubCh, err := rabbitmq.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	publisher, err := rabbitmq.NewPublisher(pubCh, cfg.RabbitMQ.Exchange)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Consumers get their own channel so prefetch does not throttle publishing.
	subCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: consumer channel: %w", err)
	}
	router := rabbitmq.NewRouter(subCh, rabbitmq.Config{
		URL:         cfg.RabbitMQ.URL,
		Exchange:    cfg.RabbitMQ.Exchange,
		QueuePrefix: cfg.RabbitMQ.QueuePrefix,
		Prefetch:    cfg.RabbitMQ.Prefetch,
		Requeue:     cfg.RabbitMQ.Requeue,
		CallTimeout: cfg.RabbitMQ.CallTimeout,
	}, tel)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		if err, ok := <-closed; ok && err != nil {
			logger.Error("rabbitmq_connection_lost",
				observability.F("error", err.Error()),
				observability.F("operator_alert", true),
			)
		}
	}()

	return &broker{
		publisher:  publisher,
		projector:  outbox.Projector{Publisher: publisher},
		paymentSub: router,
		feedSub:    router,
		start:      router.Start,
		drain: func(ctx context.Context) error {
			_ = subCh.Close()
			waited := make(chan struct{})
			go func() {
				router.Wait()
				close(waited)
			}()
			select {
			case <-waited:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		close: func() { _ = conn.Close() },
	}, nil
}

func openClaims(ctx context.Context, cfg config.Config, clk clock.Clock) (feed.ClaimStore, func(), error) {
	if cfg.Idempotency.Driver != config.DriverRedis {
		return idempotency.NewMemoryStore(clk, cfg.Idempotency.TTL), func() {}, nil
	}
	rdb, err := idempotency.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return idempotency.NewRedisStore(rdb, cfg.Idempotency.TTL), func() { _ = rdb.Close() }, nil
}
