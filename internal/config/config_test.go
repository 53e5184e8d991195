package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const repoConfigs = "../../configs"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(repoConfigs, "")
	require.NoError(t, err)

	require.Equal(t, "minishop-orders", cfg.App.Name)
	require.Equal(t, ":8080", cfg.App.HTTPAddr)
	require.Equal(t, DriverMemory, cfg.Storage.Driver)
	require.Equal(t, DriverMemory, cfg.Broker.Driver)
	require.Equal(t, DriverMemory, cfg.Idempotency.Driver)
	require.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	require.Equal(t, 24*time.Hour, cfg.Idempotency.TTL)
	require.Equal(t, int32(10), cfg.Postgres.MaxConns)
	require.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 50, cfg.RabbitMQ.Prefetch)
}

func TestLoadProdNeedsDSN(t *testing.T) {
	_, err := Load(repoConfigs, "prod")
	require.Error(t, err)
	require.Contains(t, err.Error(), "postgres.dsn")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ORDERS_POSTGRES__DSN", "postgres://orders@db/orders")
	t.Setenv("ORDERS_KAFKA__BROKERS", "k1:9092,k2:9092")
	t.Setenv("ORDERS_APP__HTTP_ADDR", ":9090")

	cfg, err := Load(repoConfigs, "prod")
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.App.Env)
	require.Equal(t, DriverPostgres, cfg.Storage.Driver)
	require.Equal(t, DriverKafka, cfg.Broker.Driver)
	require.Equal(t, "postgres://orders@db/orders", cfg.Postgres.DSN)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, ":9090", cfg.App.HTTPAddr)
	require.Empty(t, cfg.Seed.File)
}

func TestLoadMissingOverlayIsIgnored(t *testing.T) {
	_, err := Load(repoConfigs, "staging")
	require.NoError(t, err)
}

func TestLoadMissingBase(t *testing.T) {
	_, err := Load(t.TempDir(), "")
	require.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	var cfg Config
	cfg.Storage.Driver = "sqlite"
	cfg.Broker.Driver = DriverRabbitMQ
	cfg.Idempotency.Driver = DriverRedis

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"app.name", "app.http_addr", "sqlite", "rabbitmq.url", "redis.addr"} {
		require.Contains(t, err.Error(), want)
	}
}

func TestLoadSeed(t *testing.T) {
	seed, err := LoadSeed(filepath.Join(repoConfigs, "seed.yaml"))
	require.NoError(t, err)
	require.Len(t, seed.Sellers, 2)
	require.Len(t, seed.Items, 3)

	byID := map[int64]SeedItem{}
	for _, it := range seed.Items {
		byID[it.ID] = it
	}
	require.NotNil(t, byID[10].Quantity)
	require.Equal(t, 20, *byID[10].Quantity)
	require.Nil(t, byID[11].Quantity, "untracked item")
	require.Nil(t, byID[11].Available)
	require.Equal(t, []string{"veg", "south-indian"}, byID[10].Tags)
}

func TestLoadSeedRejectsBadData(t *testing.T) {
	cases := map[string]string{
		"unknown seller": `
sellers:
  - {id: 1, user_id: 100, display_name: A}
items:
  - {id: 10, seller_id: 9, name: X, price_cents: 100}
`,
		"negative quantity": `
sellers:
  - {id: 1, user_id: 100, display_name: A}
items:
  - {id: 10, seller_id: 1, name: X, price_cents: 100, quantity: -1}
`,
		"seller without user": `
sellers:
  - {id: 1, display_name: A}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadSeed(path)
			require.Error(t, err)
		})
	}
}
