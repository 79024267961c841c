package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/counter-checkout/internal/domain/checkout"
	"github.com/xenking/counter-checkout/internal/receipt"
)

// Config holds the complete application configuration, loadable from
// environment variables (POS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (POS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL     string `usage:"Redis URL for quotation numbers and register locks; empty keeps them in process" flag:"redis-url"`
	APIKeyPepper string `usage:"HMAC pepper for staff API key hashing (POS_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Checkout     CheckoutConfig
	Receipt      receipt.Header
	Printer      receipt.PrinterConfig
	// RegisterPrinters holds register=host:port pairs of network printers
	// that replace Printer for those registers.
	RegisterPrinters []string `usage:"Per-register network printers as register=host:port" flag:"register-printers"`
	SMTP             receipt.SMTPConfig
	RateLimit        RateLimitConfig
	CORS             CORSConfig
	Graceful         GracefulConfig
}

// CheckoutConfig controls checkout policy and register sessions.
type CheckoutConfig struct {
	TaxRate               string        `default:"18" usage:"Default tax rate in percent for new carts"`
	BuyerDetailsThreshold string        `default:"5000" usage:"Retail total above which buyer details are required"`
	PersistTimeout        time.Duration `default:"10s" usage:"Timeout of a single sale write"`
	LockTTL               time.Duration `default:"30s" usage:"Register lock lifetime without refresh"`
	LockRefresh           time.Duration `default:"10s" usage:"Register lock refresh interval"`
}

// Policy converts the checkout section to the orchestrator policy.
func (c CheckoutConfig) Policy() (checkout.Config, error) {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return checkout.Config{}, errors.Wrap(err, "parse tax rate")
	}
	threshold, err := decimal.NewFromString(c.BuyerDetailsThreshold)
	if err != nil {
		return checkout.Config{}, errors.Wrap(err, "parse buyer details threshold")
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return checkout.Config{}, errors.Errorf("tax rate %s out of range [0, 100]", rate)
	}
	return checkout.Config{
		BuyerDetailsThreshold: threshold,
		DefaultTaxRate:        rate,
		PersistTimeout:        c.PersistTimeout,
	}, nil
}

// registerPrinters parses RegisterPrinters into printer configs keyed by
// register ID.
func (c *Config) registerPrinters() (map[string]receipt.PrinterConfig, error) {
	out := make(map[string]receipt.PrinterConfig, len(c.RegisterPrinters))
	for _, entry := range c.RegisterPrinters {
		register, addr, ok := strings.Cut(entry, "=")
		register, addr = strings.TrimSpace(register), strings.TrimSpace(addr)
		if !ok || register == "" || addr == "" {
			return nil, errors.Errorf("register printer %q: want register=host:port", entry)
		}
		if _, dup := out[register]; dup {
			return nil, errors.Errorf("register printer %q: duplicate register", register)
		}
		out[register] = receipt.PrinterConfig{Type: "network", Address: addr, Width: c.Printer.Width}
	}
	return out, nil
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"300" usage:"Max requests per window and API key"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "POS",
		Files:     []string{"config.yaml", "/etc/pos/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set POS_DATABASE_URL or DATABASE_URL")
	}
	if cfg.Checkout.LockRefresh >= cfg.Checkout.LockTTL {
		return nil, errors.Errorf("lock refresh %s must be shorter than lock ttl %s",
			cfg.Checkout.LockRefresh, cfg.Checkout.LockTTL)
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's POS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.RedisURL == "" {
		if v := os.Getenv("REDIS_URL"); v != "" {
			c.RedisURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
