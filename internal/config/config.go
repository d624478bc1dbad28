package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port                  string `envconfig:"PORT" default:"8080"`
	AllowedOrigin         string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`
	DatabaseURL           string `envconfig:"DATABASE_URL"`
	RedisAddr             string `envconfig:"REDIS_ADDR"`
	RedisPassword         string `envconfig:"REDIS_PASSWORD"`
	RedisDB               int    `envconfig:"REDIS_DB" default:"0"`
	ReportCacheTTLSeconds int    `envconfig:"REPORT_CACHE_TTL_SECONDS" default:"300"`
	EventsChannel         string `envconfig:"EVENTS_CHANNEL" default:"posledger:events"`
	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
	ManagerPIN            string `envconfig:"MANAGER_PIN"`
	LogLevel              string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat             string `envconfig:"LOG_FORMAT" default:"json"`
	Timezone              string `envconfig:"LEDGER_TIMEZONE" default:"UTC"`
	RefundPolicy          string `envconfig:"REFUND_PRICE_POLICY" default:"current_price"`
	CommitRetries         int    `envconfig:"LEDGER_COMMIT_RETRIES" default:"3"`
	SeedAdminPassword     string `envconfig:"SEED_ADMIN_PASSWORD"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.ManagerPIN = strings.TrimSpace(cfg.ManagerPIN)
	cfg.RefundPolicy = strings.ToLower(strings.TrimSpace(cfg.RefundPolicy))
	if cfg.RefundPolicy == "" {
		cfg.RefundPolicy = "current_price"
	}
	if cfg.ReportCacheTTLSeconds < 1 {
		cfg.ReportCacheTTLSeconds = 300
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.CommitRetries < 1 {
		cfg.CommitRetries = 3
	}

	switch cfg.RefundPolicy {
	case "price_paid", "current_price":
	default:
		return Config{}, fmt.Errorf("REFUND_PRICE_POLICY must be price_paid or current_price, got %q", cfg.RefundPolicy)
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location resolves the zone that decides which calendar day a record belongs to.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("LEDGER_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
