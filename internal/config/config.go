package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/posflow/internal/checkout"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Port        string
	PostgresURL string
	StoreDriver string

	KafkaBrokers []string

	// LockTimeout bounds every lock wait inside a checkout unit of work.
	LockTimeout     time.Duration
	DefaultTaxRate  decimal.Decimal
	CreditZeroLimit checkout.ZeroLimitPolicy

	LogLevel slog.Level

	OrdersServiceURL    string
	InventoryServiceURL string
	NotifyServiceURL    string

	CompanyName string
	CountryCode string
}

// Load reads configuration from the environment, after merging an optional
// .env file from the working directory. defaultPort is used when PORT is
// unset.
func Load(defaultPort string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		Port:                getEnv("PORT", defaultPort),
		PostgresURL:         getEnv("POSTGRES_URL", ""),
		StoreDriver:         getEnv("STORE_DRIVER", StoreDriverPostgres),
		OrdersServiceURL:    getEnv("ORDERS_SERVICE_URL", ""),
		InventoryServiceURL: getEnv("INVENTORY_SERVICE_URL", ""),
		NotifyServiceURL:    getEnv("NOTIFY_SERVICE_URL", ""),
		CompanyName:         getEnv("COMPANY_NAME", "Mini ERP"),
		CountryCode:         getEnv("WHATSAPP_COUNTRY_CODE", "51"),
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	cfg.LockTimeout, err = time.ParseDuration(getEnv("LOCK_TIMEOUT", "2s"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOCK_TIMEOUT: %w", err)
	}

	cfg.DefaultTaxRate, err = decimal.NewFromString(getEnv("DEFAULT_TAX_RATE", "0.16"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_TAX_RATE: %w", err)
	}

	cfg.CreditZeroLimit, err = checkout.ParseZeroLimitPolicy(getEnv("CREDIT_ZERO_LIMIT", string(checkout.ZeroLimitUnlimited)))
	if err != nil {
		return nil, fmt.Errorf("invalid CREDIT_ZERO_LIMIT: %w", err)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT must be positive")
	}
	if c.DefaultTaxRate.IsNegative() || c.DefaultTaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("DEFAULT_TAX_RATE must be between 0 and 1")
	}
	return nil
}

// Require fails naming every listed variable that is unset.
func (c *Config) Require(keys ...string) error {
	present := map[string]bool{
		"POSTGRES_URL":          c.PostgresURL != "",
		"KAFKA_BROKERS":         len(c.KafkaBrokers) > 0,
		"ORDERS_SERVICE_URL":    c.OrdersServiceURL != "",
		"INVENTORY_SERVICE_URL": c.InventoryServiceURL != "",
		"NOTIFY_SERVICE_URL":    c.NotifyServiceURL != "",
	}

	var missing []string
	for _, key := range keys {
		if !present[key] {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s environment variable is required", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: c.LogLevel}))
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
