package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr         = ":8080"
	defaultGRPCAddr         = ":50051"
	defaultMySQLDSN         = "root:root@tcp(localhost:3306)/fulfillment?parseTime=true"
	defaultRedisAddr        = "localhost:6379"
	defaultMaxOpenConns     = 50
	defaultMaxIdleConns     = 25
	defaultConnMaxLifetime  = 5 * time.Minute
	defaultRedisPoolSize    = 100
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultOrderCacheTTL    = 10 * time.Minute
	defaultTaxRate          = "0.10"
	defaultTaxLabel         = "VAT"
	defaultCurrency         = "USD"
	defaultDeliveryEstimate = 7 * 24 * time.Hour
	defaultShutdownTimeout  = 5 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Redis    RedisConfig    `yaml:"redis"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Delivery DeliveryConfig `yaml:"delivery"`
}

// ServerConfig configures the HTTP and gRPC listeners.
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MySQLConfig stores connection pool parameters.
type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	EnsureSchema    bool          `yaml:"ensure_schema"`
}

// RedisConfig covers idempotency keys and the order cache.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	PoolSize       int           `yaml:"pool_size"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
	OrderCacheTTL  time.Duration `yaml:"order_cache_ttl"`
}

// PricingConfig holds the flat default tax rule.
type PricingConfig struct {
	TaxRate  decimal.Decimal `yaml:"-"`
	TaxRaw   string          `yaml:"tax_rate"`
	TaxLabel string          `yaml:"tax_label"`
	Currency string          `yaml:"currency"`
}

// DeliveryConfig controls delivery estimates.
type DeliveryConfig struct {
	Estimate time.Duration `yaml:"estimate"`
}

// Default returns a configuration suitable for local development.
func Default() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddr:        defaultHTTPAddr,
			GRPCAddr:        defaultGRPCAddr,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		MySQL: MySQLConfig{
			DSN:             defaultMySQLDSN,
			MaxOpenConns:    defaultMaxOpenConns,
			MaxIdleConns:    defaultMaxIdleConns,
			ConnMaxLifetime: defaultConnMaxLifetime,
		},
		Redis: RedisConfig{
			Addr:           defaultRedisAddr,
			PoolSize:       defaultRedisPoolSize,
			IdempotencyTTL: defaultIdempotencyTTL,
			OrderCacheTTL:  defaultOrderCacheTTL,
		},
		Pricing: PricingConfig{
			TaxRaw:   defaultTaxRate,
			TaxLabel: defaultTaxLabel,
			Currency: defaultCurrency,
		},
		Delivery: DeliveryConfig{Estimate: defaultDeliveryEstimate},
	}
}

// Load builds configuration from defaults, the optional YAML file named by
// CONFIG_FILE, then environment variables, in increasing precedence.
func Load() (Config, error) {
	return load(os.LookupEnv, os.ReadFile)
}

func load(lookup func(string) (string, bool), readFile func(string) ([]byte, error)) (Config, error) {
	cfg := Default()

	if path, ok := lookup("CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		data, err := readFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	env := envReader{lookup: lookup}
	env.str("HTTP_ADDR", &cfg.Server.HTTPAddr)
	env.str("GRPC_ADDR", &cfg.Server.GRPCAddr)
	env.duration("SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	env.str("MYSQL_DSN", &cfg.MySQL.DSN)
	env.integer("MYSQL_MAX_OPEN_CONNS", &cfg.MySQL.MaxOpenConns)
	env.integer("MYSQL_MAX_IDLE_CONNS", &cfg.MySQL.MaxIdleConns)
	env.duration("MYSQL_CONN_MAX_LIFETIME", &cfg.MySQL.ConnMaxLifetime)
	env.boolean("MYSQL_ENSURE_SCHEMA", &cfg.MySQL.EnsureSchema)
	env.str("REDIS_ADDR", &cfg.Redis.Addr)
	env.integer("REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	env.duration("IDEMPOTENCY_TTL", &cfg.Redis.IdempotencyTTL)
	env.duration("ORDER_CACHE_TTL", &cfg.Redis.OrderCacheTTL)
	env.str("TAX_DEFAULT_RATE", &cfg.Pricing.TaxRaw)
	env.str("TAX_LABEL", &cfg.Pricing.TaxLabel)
	env.str("DEFAULT_CURRENCY", &cfg.Pricing.Currency)
	env.duration("DELIVERY_ESTIMATE", &cfg.Delivery.Estimate)
	if env.err != nil {
		return Config{}, env.err
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(cfg.Pricing.TaxRaw))
	if err != nil {
		return Config{}, fmt.Errorf("config: invalid tax rate %q: %w", cfg.Pricing.TaxRaw, err)
	}
	cfg.Pricing.TaxRate = rate

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures the configuration is internally consistent.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.HTTPAddr) == "" {
		errs = append(errs, errors.New("config: http address is required"))
	}
	if strings.TrimSpace(c.Server.GRPCAddr) == "" {
		errs = append(errs, errors.New("config: grpc address is required"))
	}
	if c.Pricing.TaxRate.IsNegative() {
		errs = append(errs, errors.New("config: tax rate must not be negative"))
	}
	if len(strings.TrimSpace(c.Pricing.Currency)) != 3 {
		errs = append(errs, fmt.Errorf("config: currency %q must be a 3-letter code", c.Pricing.Currency))
	}
	if c.Delivery.Estimate <= 0 {
		errs = append(errs, errors.New("config: delivery estimate must be positive"))
	}
	return errors.Join(errs...)
}

type envReader struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *envReader) value(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.value(key); ok {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("config: %s must be an integer: %w", key, err))
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("config: %s must be a duration: %w", key, err))
		return
	}
	*dst = d
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.value(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("config: %s must be a boolean: %w", key, err))
		return
	}
	*dst = b
}
