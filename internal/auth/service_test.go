package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/debtledger/internal/config"
	"github.com/congo-pay/debtledger/internal/identity"
)

func newTestService(t *testing.T) (*Service, *identity.Service) {
	t.Helper()
	repo := identity.NewMemoryRepository()
	cfg := config.Config{
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
	}
	return NewService(cfg, repo), identity.NewService(repo, "")
}

func TestLoginVerifyAndLogout(t *testing.T) {
	svc, ids := newTestService(t)
	ctx := context.Background()

	account, err := ids.Register(ctx, identity.Credentials{Address: "0xffcf8fdee72ac11b5c542428b35eef5769c409f0", Passphrase: "long enough"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := svc.Login(account)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if pair.ExpiresIn <= 0 || pair.ExpiresIn > 60 {
		t.Fatalf("unexpected expires_in %d", pair.ExpiresIn)
	}

	caller, err := svc.Verify(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if caller != account.Address {
		t.Fatalf("verified caller %s, want %s", caller, account.Address)
	}

	// Refresh tokens are signed with a different secret.
	if _, err := svc.Verify(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh token to be rejected as access token, got %v", err)
	}

	access, _, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := svc.Verify(ctx, access); err != nil {
		t.Fatalf("verify refreshed token: %v", err)
	}

	if err := svc.Logout(ctx, account.Address); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Verify(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected token invalidated after logout, got %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected refresh rejected after logout, got %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Verify(context.Background(), "not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
