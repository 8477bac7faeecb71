package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/congo-pay/debtledger/internal/ledger"
)

// Ledger storage backends selectable through LEDGER_BACKEND.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

const (
	devAccessSecret  = "dev-access-secret-change-me"
	devRefreshSecret = "dev-refresh-secret-change-me"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName   string `env:"APP_NAME" envDefault:"DebtLedger"`
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	Backend      string `env:"LEDGER_BACKEND" envDefault:"memory"`
	OwnerAddress string `env:"OWNER_ADDRESS,required,notEmpty"`

	// OwnerPassphraseHash is the bcrypt hash the owner logs in with. The owner
	// address cannot be registered through the API.
	OwnerPassphraseHash string `env:"OWNER_PASSPHRASE_HASH"`

	DatabaseURL      string `env:"DATABASE_URL"`
	DatabaseMaxConns int32  `env:"DATABASE_MAX_CONNS" envDefault:"0"`
	RedisURL         string `env:"REDIS_URL"`
	RedisPrefix      string `env:"REDIS_PREFIX" envDefault:"debts"`

	JWTSecret       string        `env:"JWT_SECRET" envDefault:"dev-access-secret-change-me"`
	RefreshSecret   string        `env:"REFRESH_SECRET" envDefault:"dev-refresh-secret-change-me"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	LoginRateLimit int           `env:"LOGIN_RATE_LIMIT" envDefault:"5"`

	// Owner is OwnerAddress after validation.
	Owner ledger.Address
}

// Load reads configuration values from the environment and validates them.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Backend = strings.ToLower(cfg.Backend)

	owner, err := ledger.ParseAddress(cfg.OwnerAddress)
	if err != nil {
		return Config{}, fmt.Errorf("invalid OWNER_ADDRESS: %w", err)
	}
	cfg.Owner = owner

	switch cfg.Backend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when LEDGER_BACKEND=%s", cfg.Backend)
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when LEDGER_BACKEND=%s", cfg.Backend)
		}
	default:
		return Config{}, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.Backend)
	}

	if cfg.JWTSecret == cfg.RefreshSecret {
		return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must differ")
	}

	if !cfg.IsDev() {
		if cfg.JWTSecret == devAccessSecret || cfg.RefreshSecret == devRefreshSecret {
			return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.OwnerPassphraseHash == "" {
			return Config{}, fmt.Errorf("OWNER_PASSPHRASE_HASH must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.Backend == BackendMemory {
			return Config{}, fmt.Errorf("LEDGER_BACKEND=%s is only allowed in development", BackendMemory)
		}
	}

	return cfg, nil
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
