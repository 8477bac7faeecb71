package config

import (
	"testing"
	"time"
)

const testOwner = "0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", testOwner)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend != BackendMemory {
		t.Fatalf("Backend = %q, want memory", cfg.Backend)
	}
	if cfg.Owner != "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1" {
		t.Fatalf("Owner = %q, want lower-cased address", cfg.Owner)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("Address() = %q, want :8080", cfg.Address())
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("IdempotencyTTL = %v, want 24h", cfg.IdempotencyTTL)
	}
	if cfg.ShutdownPeriod != 10*time.Second {
		t.Fatalf("ShutdownPeriod = %v, want 10s", cfg.ShutdownPeriod)
	}
}

func TestLoadRequiresOwner(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error, got nil")
	}

	t.Setenv("OWNER_ADDRESS", "not-an-address")
	if _, err := Load(); err == nil {
		t.Fatal("Load() expected error for malformed owner, got nil")
	}
}

func TestLoadBackendRequirements(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", testOwner)

	t.Setenv("LEDGER_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/debts?sslmode=disable")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	t.Setenv("LEDGER_BACKEND", "redis")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without REDIS_URL")
	}

	t.Setenv("LEDGER_BACKEND", "cassandra")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadProductionRequiresSecrets(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", testOwner)
	t.Setenv("APP_ENV", "production")
	t.Setenv("LEDGER_BACKEND", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error with default secrets in production")
	}

	t.Setenv("JWT_SECRET", "access-secret")
	t.Setenv("REFRESH_SECRET", "refresh-secret")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without OWNER_PASSPHRASE_HASH in production")
	}

	t.Setenv("OWNER_PASSPHRASE_HASH", "$2a$10$abcdefghijklmnopqrstuuJ3QWjpQmDe7vN1Hq0yZTuTT6Jq1x5/G")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("AccessTokenTTL = %v, want 5m", cfg.AccessTokenTTL)
	}
}

func TestLoadRejectsSharedTokenSecret(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", testOwner)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.JWTSecret == cfg.RefreshSecret {
		t.Fatalf("default access and refresh secrets must differ, both %q", cfg.JWTSecret)
	}

	t.Setenv("JWT_SECRET", "same-secret")
	t.Setenv("REFRESH_SECRET", "same-secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when access and refresh secrets are equal")
	}
}
