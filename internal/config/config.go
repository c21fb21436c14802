package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	DB struct {
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"db"`
	Pricing struct {
		FeeRate      string            `yaml:"fee_rate"`
		ProductRates map[string]string `yaml:"product_rates"`
	} `yaml:"pricing"`
	Currency struct {
		Code       string `yaml:"code"`
		MinorUnits *int32 `yaml:"minor_units"`
	} `yaml:"currency"`
	Payout struct {
		StripeSecretKey string `yaml:"stripe_secret_key"`
		WebhookSecret   string `yaml:"webhook_secret"`
		RefreshURL      string `yaml:"refresh_url"`
		ReturnURL       string `yaml:"return_url"`
		Country         string `yaml:"country"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		SuccessURL      string `yaml:"checkout_success_url"`
		CancelURL       string `yaml:"checkout_cancel_url"`
	} `yaml:"payout"`
	Worker struct {
		IntervalSeconds int64 `yaml:"interval_seconds"`
		BatchSize       int   `yaml:"batch_size"`
	} `yaml:"worker"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	feeRate      decimal.Decimal
	productRates map[string]decimal.Decimal
}

// Load reads the yaml file, then a .env file if present, then environment
// overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DB.Driver == "" {
		cfg.DB.Driver = DriverPostgres
	}
	if cfg.Pricing.FeeRate == "" {
		cfg.Pricing.FeeRate = "0.10"
	}
	if cfg.Currency.Code == "" {
		cfg.Currency.Code = "USD"
	}
	if cfg.Currency.MinorUnits == nil {
		two := int32(2)
		cfg.Currency.MinorUnits = &two
	}
	if cfg.Payout.TimeoutSeconds <= 0 {
		cfg.Payout.TimeoutSeconds = 10
	}
	if cfg.Worker.IntervalSeconds <= 0 {
		cfg.Worker.IntervalSeconds = 300
	}
	if cfg.Worker.BatchSize <= 0 {
		cfg.Worker.BatchSize = 100
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func (cfg *Config) validate() error {
	if cfg.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	switch cfg.DB.Driver {
	case DriverPostgres:
		if cfg.DB.DSN == "" {
			return errors.New("db.dsn is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("db.driver %q is not supported", cfg.DB.Driver)
	}

	rate, err := parseRate(cfg.Pricing.FeeRate)
	if err != nil {
		return fmt.Errorf("pricing.fee_rate: %w", err)
	}
	cfg.feeRate = rate

	cfg.productRates = make(map[string]decimal.Decimal, len(cfg.Pricing.ProductRates))
	for product, v := range cfg.Pricing.ProductRates {
		r, err := parseRate(v)
		if err != nil {
			return fmt.Errorf("pricing.product_rates[%s]: %w", product, err)
		}
		cfg.productRates[product] = r
	}

	if mu := *cfg.Currency.MinorUnits; mu < 0 || mu > 8 {
		return errors.New("currency.minor_units must be between 0 and 8")
	}
	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}
	return nil
}

func parseRate(v string) (decimal.Decimal, error) {
	r, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, err
	}
	if r.IsNegative() || r.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("rate %s must be in [0, 1)", v)
	}
	return r, nil
}

func (cfg *Config) FeeRate() decimal.Decimal { return cfg.feeRate }

func (cfg *Config) ProductRates() map[string]decimal.Decimal { return cfg.productRates }

func (cfg *Config) MinorUnits() int32 { return *cfg.Currency.MinorUnits }

func (cfg *Config) PayoutTimeout() time.Duration {
	return time.Duration(cfg.Payout.TimeoutSeconds) * time.Second
}

func (cfg *Config) WorkerInterval() time.Duration {
	return time.Duration(cfg.Worker.IntervalSeconds) * time.Second
}

func ParseLevel(v string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.DB.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.DB.DSN = v
	}
	if v := os.Getenv("FEE_RATE"); v != "" {
		cfg.Pricing.FeeRate = v
	}
	if v := os.Getenv("PRODUCT_FEE_RATES"); v != "" {
		cfg.Pricing.ProductRates = splitRateList(v)
	}
	if v := os.Getenv("CURRENCY_CODE"); v != "" {
		cfg.Currency.Code = v
	}
	if v := os.Getenv("CURRENCY_MINOR_UNITS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			mu := int32(i)
			cfg.Currency.MinorUnits = &mu
		}
	}
	if v := os.Getenv("STRIPE_SECRET_KEY"); v != "" {
		cfg.Payout.StripeSecretKey = v
	}
	if v := os.Getenv("STRIPE_WEBHOOK_SECRET"); v != "" {
		cfg.Payout.WebhookSecret = v
	}
	if v := os.Getenv("PAYOUT_REFRESH_URL"); v != "" {
		cfg.Payout.RefreshURL = v
	}
	if v := os.Getenv("PAYOUT_RETURN_URL"); v != "" {
		cfg.Payout.ReturnURL = v
	}
	if v := os.Getenv("CHECKOUT_SUCCESS_URL"); v != "" {
		cfg.Payout.SuccessURL = v
	}
	if v := os.Getenv("CHECKOUT_CANCEL_URL"); v != "" {
		cfg.Payout.CancelURL = v
	}
	if v := os.Getenv("PAYOUT_COUNTRY"); v != "" {
		cfg.Payout.Country = v
	}
	if v := os.Getenv("PAYOUT_TIMEOUT_SECONDS"); v != "" {
		cfg.Payout.TimeoutSeconds = atoiOr(cfg.Payout.TimeoutSeconds, v)
	}
	if v := os.Getenv("WORKER_INTERVAL_SECONDS"); v != "" {
		cfg.Worker.IntervalSeconds = atoi64Or(cfg.Worker.IntervalSeconds, v)
	}
	if v := os.Getenv("WORKER_BATCH_SIZE"); v != "" {
		cfg.Worker.BatchSize = atoiOr(cfg.Worker.BatchSize, v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// splitRateList parses "product=rate,product=rate".
func splitRateList(v string) map[string]string {
	out := make(map[string]string)
	for _, p := range splitCommaList(v) {
		k, rate, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(rate)
	}
	return out
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func atoiOr(fallback int, v string) int {
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func atoi64Or(fallback int64, v string) int64 {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}
