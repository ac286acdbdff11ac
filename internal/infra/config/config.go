package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	HTTPClient HTTPClientConfig  `mapstructure:"http_client"`
	Log        LogConfig         `mapstructure:"log"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Auth       AuthConfig        `mapstructure:"auth"`
	Fees       FeesConfig        `mapstructure:"fees"`
	Retry      RetryConfig       `mapstructure:"retry"`
	Breaker    BreakerConfig     `mapstructure:"breaker"`
	Locking    LockingConfig     `mapstructure:"locking"`
	Linking    LinkingConfig     `mapstructure:"linking"`
	Archive    ArchiveConfig     `mapstructure:"archive"`
	Events     EventsConfig      `mapstructure:"events"`
	Stripe     StripeConfig      `mapstructure:"stripe"`
	MobileA    MobileMoneyConfig `mapstructure:"mobile_a"`
	MobileB    MobileMoneyConfig `mapstructure:"mobile_b"`
	Features   FeaturesConfig    `mapstructure:"features"`
}

// FeaturesConfig holds behaviour toggles.
type FeaturesConfig struct {
	// InstantSettlement pays the merchant out as soon as a payment succeeds.
	InstantSettlement bool `mapstructure:"instant_settlement"`
	// Sandbox makes simulated rails emit their own webhooks.
	Sandbox bool `mapstructure:"sandbox"`
	// MerchantRail carries settlements and merchant refunds.
	MerchantRail string `mapstructure:"merchant_rail"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// PublicURL is where providers reach our webhooks.
	PublicURL      string   `mapstructure:"public_url"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode,
	)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	return dsn
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// HTTPClientConfig holds HTTP client configuration for connection pooling.
type HTTPClientConfig struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout"`
	DialTimeout         time.Duration `mapstructure:"dial_timeout"`
	TLSHandshakeTimeout time.Duration `mapstructure:"tls_handshake_timeout"`
	ResponseTimeout     time.Duration `mapstructure:"response_timeout"`
	KeepAlive           time.Duration `mapstructure:"keep_alive"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// AuthConfig holds operator API authentication configuration.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	// OperatorRole is required for refund and merchant-refund routes.
	OperatorRole string `mapstructure:"operator_role"`
}

// FeesConfig holds platform fee configuration.
type FeesConfig struct {
	Percentage float64 `mapstructure:"percentage"`
}

// RetryConfig holds provider retry configuration.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	// MaxUpdateAttempts bounds optimistic-concurrency retries.
	MaxUpdateAttempts int `mapstructure:"max_update_attempts"`
}

// BreakerConfig holds per-rail circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	SuccessThreshold uint32        `mapstructure:"success_threshold"`
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// LockingConfig holds per-transaction lock configuration.
type LockingConfig struct {
	// Enabled selects the Redis lock; otherwise an in-process lock is used.
	Enabled      bool          `mapstructure:"enabled"`
	TTL          time.Duration `mapstructure:"ttl"`
	WaitTimeout  time.Duration `mapstructure:"wait_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// LinkingConfig holds linking record configuration.
type LinkingConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// ArchiveConfig holds raw webhook archive configuration.
type ArchiveConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
}

// EventsConfig holds outbound transaction event configuration.
type EventsConfig struct {
	// Channel is the Redis channel transaction events are published on.
	// Empty disables the Redis fan-out.
	Channel string `mapstructure:"channel"`
}

// StripeConfig holds card rail configuration.
type StripeConfig struct {
	SecretKey string `mapstructure:"secret_key"`
	// BackendURL overrides the Stripe API base URL (stripe-mock in tests).
	BackendURL string `mapstructure:"backend_url"`
}

// MobileMoneyConfig holds configuration for one mobile money rail.
type MobileMoneyConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	BaseURL           string `mapstructure:"base_url"`
	TokenURL          string `mapstructure:"token_url"`
	ClientID          string `mapstructure:"client_id"`
	ClientSecret      string `mapstructure:"client_secret"`
	CollectionKey     string `mapstructure:"collection_key"`
	DisbursementKey   string `mapstructure:"disbursement_key"`
	TargetEnvironment string `mapstructure:"target_environment"`
	// CallbackURL is where a sandbox rail posts simulated webhooks.
	CallbackURL string `mapstructure:"callback_url"`
}

// Load loads configuration from .env, file and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/reconciler")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("RECONCILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Secrets
	if secret := os.Getenv("RECONCILER_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if password := os.Getenv("RECONCILER_DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if password := os.Getenv("RECONCILER_REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if key := os.Getenv("RECONCILER_ARCHIVE_SECRET_KEY"); key != "" {
		cfg.Archive.SecretAccessKey = key
	}
	if key := os.Getenv("RECONCILER_STRIPE_SECRET_KEY"); key != "" {
		cfg.Stripe.SecretKey = key
	}
	if secret := os.Getenv("RECONCILER_MOBILE_A_CLIENT_SECRET"); secret != "" {
		cfg.MobileA.ClientSecret = secret
	}
	if secret := os.Getenv("RECONCILER_MOBILE_B_CLIENT_SECRET"); secret != "" {
		cfg.MobileB.ClientSecret = secret
	}
	if s := os.Getenv("RECONCILER_ALLOWED_ORIGINS"); s != "" {
		cfg.Server.AllowedOrigins = parseCommaSeparatedList(s)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Fees.Percentage < 0 || c.Fees.Percentage > 100 {
		return fmt.Errorf("fees.percentage %v outside [0, 100]", c.Fees.Percentage)
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.enabled requires a jwt secret")
	}
	if c.Archive.Enabled && c.Archive.Bucket == "" {
		return errors.New("archive.enabled requires archive.bucket")
	}
	return nil
}

func parseCommaSeparatedList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.public_url", "http://localhost:8080")
	v.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "reconciler")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 30*time.Minute)

	// Redis defaults
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// HTTP client defaults
	v.SetDefault("http_client.max_idle_conns", 100)
	v.SetDefault("http_client.max_idle_conns_per_host", 20)
	v.SetDefault("http_client.max_conns_per_host", 50)
	v.SetDefault("http_client.idle_conn_timeout", 90*time.Second)
	v.SetDefault("http_client.dial_timeout", 10*time.Second)
	v.SetDefault("http_client.tls_handshake_timeout", 10*time.Second)
	v.SetDefault("http_client.response_timeout", 30*time.Second)
	v.SetDefault("http_client.keep_alive", 30*time.Second)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "reconciler")

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.operator_role", "operator")

	// Domain defaults
	v.SetDefault("fees.percentage", 2.5)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.base_delay", 200*time.Millisecond)
	v.SetDefault("retry.max_delay", 30*time.Second)
	v.SetDefault("retry.max_update_attempts", 3)

	// Breaker defaults
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)

	// Locking defaults
	v.SetDefault("locking.enabled", false)
	v.SetDefault("locking.ttl", 30*time.Second)
	v.SetDefault("locking.wait_timeout", 10*time.Second)
	v.SetDefault("locking.poll_interval", 50*time.Millisecond)

	// Linking records live long enough for slow second-leg callbacks.
	v.SetDefault("linking.ttl", 72*time.Hour)

	// Archive defaults
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.region", "auto")
	v.SetDefault("archive.prefix", "webhooks/")

	v.SetDefault("events.channel", "transactions.events")

	// Mobile money defaults
	v.SetDefault("mobile_a.target_environment", "sandbox")
	v.SetDefault("mobile_b.target_environment", "sandbox")

	// Feature defaults
	v.SetDefault("features.instant_settlement", true)
	v.SetDefault("features.sandbox", false)
	v.SetDefault("features.merchant_rail", "MOBILE_A")
}
