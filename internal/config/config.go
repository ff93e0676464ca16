package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Log       LogConfig
	Storage   StorageConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Catalog   CatalogConfig
	JWT       JWTConfig
	Session   SessionConfig
	Kafka     KafkaConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Name string
	Env  string
	Port string
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	RequestTimeout   time.Duration
	ShutdownTimeout  time.Duration
	MaxBodySize      int64
	CORSAllowOrigins []string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// StorageConfig selects the owner store: "mongo" or "memory".
type StorageConfig struct {
	Driver string
}

type MongoConfig struct {
	URI      string
	Database string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// CatalogConfig selects where item existence is checked.
type CatalogConfig struct {
	Driver         string // mongo or sql
	SQLDriver      string // postgres or sqlite
	DSN            string
	MigrationsPath string
	BreakerMaxFail uint32
	BreakerTimeout time.Duration
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type SessionConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
	HeaderName    string
	CookieName    string
	CookieSecure  bool
}

type KafkaConfig struct {
	Enabled            bool
	Brokers            []string
	CheckoutTopic      string
	CheckoutGroupID    string
	MergeFailureTopic  string
	MergeRetryGroupID  string
	MaxMergeAttempts   int
	MergeRetryInterval time.Duration
}

type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	Insecure          bool
	ServiceName       string
	SamplingRatio     float64
}

// Load reads configuration from an optional config.toml and environment.
// Priority (highest to lowest):
// 1. Environment variables with SHOPSTATE_ prefix (e.g., SHOPSTATE_MONGO_URI)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("SHOPSTATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			RequestTimeout:   v.GetDuration("http.request_timeout"),
			ShutdownTimeout:  v.GetDuration("http.shutdown_timeout"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Storage: StorageConfig{
			Driver: v.GetString("storage.driver"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			CacheTTL: v.GetDuration("redis.cache_ttl"),
		},
		Catalog: CatalogConfig{
			Driver:         v.GetString("catalog.driver"),
			SQLDriver:      v.GetString("catalog.sql_driver"),
			DSN:            v.GetString("catalog.dsn"),
			MigrationsPath: v.GetString("catalog.migrations_path"),
			BreakerMaxFail: v.GetUint32("catalog.breaker_max_failures"),
			BreakerTimeout: v.GetDuration("catalog.breaker_timeout"),
		},
		JWT: JWTConfig{
			Secret: v.GetString("jwt.secret"),
			Issuer: v.GetString("jwt.issuer"),
		},
		Session: SessionConfig{
			TTL:           v.GetDuration("session.ttl"),
			SweepInterval: v.GetDuration("session.sweep_interval"),
			HeaderName:    v.GetString("session.header_name"),
			CookieName:    v.GetString("session.cookie_name"),
			CookieSecure:  v.GetBool("session.cookie_secure"),
		},
		Kafka: KafkaConfig{
			Enabled:            v.GetBool("kafka.enabled"),
			Brokers:            v.GetStringSlice("kafka.brokers"),
			CheckoutTopic:      v.GetString("kafka.checkout_topic"),
			CheckoutGroupID:    v.GetString("kafka.checkout_group_id"),
			MergeFailureTopic:  v.GetString("kafka.merge_failure_topic"),
			MergeRetryGroupID:  v.GetString("kafka.merge_retry_group_id"),
			MaxMergeAttempts:   v.GetInt("kafka.max_merge_attempts"),
			MergeRetryInterval: v.GetDuration("kafka.merge_retry_interval"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			Insecure:          v.GetBool("telemetry.insecure"),
			ServiceName:       v.GetString("telemetry.service_name"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "shopstate-service"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 10 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 10 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.RequestTimeout == 0 {
		cfg.HTTP.RequestTimeout = 30 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "mongo"
	}
	if cfg.Mongo.URI == "" {
		cfg.Mongo.URI = "mongodb://localhost:27017"
	}
	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "shopdb"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = 15 * time.Minute
	}
	if cfg.Catalog.Driver == "" {
		cfg.Catalog.Driver = "mongo"
	}
	if cfg.Catalog.SQLDriver == "" {
		cfg.Catalog.SQLDriver = "postgres"
	}
	if cfg.Catalog.MigrationsPath == "" {
		cfg.Catalog.MigrationsPath = "./migrations/catalog"
	}
	if cfg.Catalog.BreakerMaxFail == 0 {
		cfg.Catalog.BreakerMaxFail = 5
	}
	if cfg.Catalog.BreakerTimeout == 0 {
		cfg.Catalog.BreakerTimeout = 30 * time.Second
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "em-furniture"
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 7 * 24 * time.Hour
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = 10 * time.Minute
	}
	if cfg.Session.HeaderName == "" {
		cfg.Session.HeaderName = "X-Session-Token"
	}
	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = "session_token"
	}
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.CheckoutTopic == "" {
		cfg.Kafka.CheckoutTopic = "checkout-outbox"
	}
	if cfg.Kafka.CheckoutGroupID == "" {
		cfg.Kafka.CheckoutGroupID = "shopstate-service"
	}
	if cfg.Kafka.MergeFailureTopic == "" {
		cfg.Kafka.MergeFailureTopic = "shopstate.merge-failures"
	}
	if cfg.Kafka.MergeRetryGroupID == "" {
		cfg.Kafka.MergeRetryGroupID = "shopstate-merge-retry"
	}
	if cfg.Kafka.MaxMergeAttempts == 0 {
		cfg.Kafka.MaxMergeAttempts = 5
	}
	if cfg.Kafka.MergeRetryInterval == 0 {
		cfg.Kafka.MergeRetryInterval = 30 * time.Second
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case "mongo", "memory":
	default:
		return fmt.Errorf("storage.driver must be mongo or memory, got %q", c.Storage.Driver)
	}
	switch c.Catalog.Driver {
	case "mongo":
		if c.Storage.Driver != "mongo" {
			return errors.New("catalog.driver=mongo requires storage.driver=mongo")
		}
	case "sql":
		if c.Catalog.SQLDriver != "postgres" && c.Catalog.SQLDriver != "sqlite" {
			return fmt.Errorf("catalog.sql_driver must be postgres or sqlite, got %q", c.Catalog.SQLDriver)
		}
		if c.Catalog.DSN == "" {
			return errors.New("catalog.dsn is required when catalog.driver=sql")
		}
	default:
		return fmt.Errorf("catalog.driver must be mongo or sql, got %q", c.Catalog.Driver)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.IsProduction() && len(c.JWT.Secret) < 32 {
		return errors.New("jwt.secret must be at least 32 characters in production")
	}
	if c.Session.TTL < time.Minute {
		return fmt.Errorf("session.ttl must be at least 1m, got %s", c.Session.TTL)
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("telemetry.sampling_ratio must be within [0,1], got %v", c.Telemetry.SamplingRatio)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
