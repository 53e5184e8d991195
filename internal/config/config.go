package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ORDERS_"

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverKafka    = "kafka"
	DriverRabbitMQ = "rabbitmq"
	DriverRedis    = "redis"
)

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		Env      string `koanf:"env"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout     time.Duration `koanf:"read_timeout"`
		WriteTimeout    time.Duration `koanf:"write_timeout"`
		ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	} `koanf:"http"`

	Storage struct {
		Driver string `koanf:"driver"`
	} `koanf:"storage"`

	Postgres struct {
		DSN      string `koanf:"dsn"`
		MaxConns int32  `koanf:"max_conns"`
		Migrate  bool   `koanf:"migrate"`
	} `koanf:"postgres"`

	Broker struct {
		Driver string `koanf:"driver"`
	} `koanf:"broker"`

	Kafka struct {
		Brokers      []string `koanf:"brokers"`
		GroupID      string   `koanf:"group_id"`
		ClientID     string   `koanf:"client_id"`
		CatalogTopic string   `koanf:"catalog_topic"`
	} `koanf:"kafka"`

	RabbitMQ struct {
		URL         string        `koanf:"url"`
		Exchange    string        `koanf:"exchange"`
		QueuePrefix string        `koanf:"queue_prefix"`
		Prefetch    int           `koanf:"prefetch"`
		Requeue     bool          `koanf:"requeue"`
		CallTimeout time.Duration `koanf:"call_timeout"`
	} `koanf:"rabbitmq"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Idempotency struct {
		Driver string        `koanf:"driver"`
		TTL    time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Outbox struct {
		QueueSize   int `koanf:"queue_size"`
		Concurrency int `koanf:"concurrency"`
		MaxAttempts int `koanf:"max_attempts"`
	} `koanf:"outbox"`

	Telemetry struct {
		Exporter string `koanf:"exporter"`
		Endpoint string `koanf:"endpoint"`
		Insecure bool   `koanf:"insecure"`
	} `koanf:"telemetry"`

	Seed struct {
		File string `koanf:"file"`
	} `koanf:"seed"`
}

// Load layers <dir>/base.yaml, the optional <dir>/<envName>.yaml, and ORDERS_* variables
// (ORDERS_POSTGRES__DSN sets postgres.dsn), then validates.
func Load(dir, envName string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(filepath.Join(dir, "base.yaml")), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}
	if envName != "" {
		// Optional; local runs have no overlay.
		_ = k.Load(file.Provider(filepath.Join(dir, envName+".yaml")), yaml.Parser())
	}
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", envValue), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if cfg.App.Env == "" {
		cfg.App.Env = envName
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envValue(key, value string) (string, any) {
	key = strings.TrimPrefix(key, envPrefix)
	key = strings.ToLower(strings.ReplaceAll(key, "__", "."))
	if key == "kafka.brokers" {
		return key, strings.Split(value, ",")
	}
	return key, value
}

func (c Config) Validate() error {
	var errs []error
	if c.App.Name == "" {
		errs = append(errs, errors.New("app.name required"))
	}
	if c.App.HTTPAddr == "" {
		errs = append(errs, errors.New("app.http_addr required"))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, errors.New("postgres.dsn required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want memory or postgres", c.Storage.Driver))
	}

	switch c.Broker.Driver {
	case DriverMemory:
	case DriverKafka:
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers required for the kafka driver"))
		}
		if c.Kafka.GroupID == "" {
			errs = append(errs, errors.New("kafka.group_id required for the kafka driver"))
		}
	case DriverRabbitMQ:
		if c.RabbitMQ.URL == "" || c.RabbitMQ.Exchange == "" {
			errs = append(errs, errors.New("rabbitmq.url and rabbitmq.exchange required for the rabbitmq driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("broker.driver %q: want memory, kafka or rabbitmq", c.Broker.Driver))
	}

	switch c.Idempotency.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr required for the redis idempotency driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("idempotency.driver %q: want memory or redis", c.Idempotency.Driver))
	}
	return errors.Join(errs...)
}
