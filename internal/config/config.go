package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/shopspring/decimal"

	"payouts.hh/internal/fee"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`
	DBHost      string `env:"DB_HOST" envDefault:"localhost"`
	DBPort      string `env:"DB_PORT" envDefault:"5432"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME"`
	DBSSLMode   string `env:"DB_SSLMODE" envDefault:"disable"`
	// InMemory runs without Postgres. Data is lost on exit.
	InMemory bool `env:"IN_MEMORY" envDefault:"false"`

	AuthToken         string        `env:"AUTH_TOKEN,required"`
	Port              string        `env:"PORT" envDefault:"8080"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"5s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`

	FeeRate  string `env:"FEE_RATE" envDefault:"0.03"`
	FeeFixed int64  `env:"FEE_FIXED" envDefault:"0"`

	RedisURL            string        `env:"REDIS_URL"`
	PixKeyCacheTTL      time.Duration `env:"PIXKEY_CACHE_TTL" envDefault:"10m"`
	PixKeyLookupTimeout time.Duration `env:"PIXKEY_LOOKUP_TIMEOUT" envDefault:"500ms"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	cfg.AuthToken = strings.TrimSpace(cfg.AuthToken)
	if cfg.AuthToken == "" {
		return Config{}, errors.New("AUTH_TOKEN is required")
	}

	if cfg.DatabaseURL == "" && !cfg.InMemory {
		if cfg.DBUser == "" || cfg.DBPassword == "" || cfg.DBName == "" {
			return Config{}, errors.New("DATABASE_URL or DB_USER/DB_PASSWORD/DB_NAME are required")
		}
		cfg.DatabaseURL = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
			cfg.DBSSLMode,
		)
	}

	if _, err := cfg.FeePolicy(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) FeePolicy() (fee.Policy, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.FeeRate))
	if err != nil {
		return fee.Policy{}, fmt.Errorf("invalid FEE_RATE %q: %w", c.FeeRate, err)
	}
	p := fee.Policy{Rate: rate, Fixed: c.FeeFixed}
	if _, err := fee.NewCalculator(p); err != nil {
		return fee.Policy{}, err
	}
	return p, nil
}
