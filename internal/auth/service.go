package auth

import (
	"context"
	"time"

	"github.com/congo-pay/debtledger/internal/config"
	"github.com/congo-pay/debtledger/internal/identity"
	"github.com/congo-pay/debtledger/internal/ledger"
)

// Service issues and verifies account tokens.
type Service struct {
	access  signer
	refresh signer
	repo    identity.Repository
}

// NewService builds a token service from cfg's secrets and lifetimes.
func NewService(cfg config.Config, repo identity.Repository) *Service {
	return &Service{
		access:  signer{secret: []byte(cfg.JWTSecret), ttl: cfg.AccessTokenTTL},
		refresh: signer{secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTokenTTL},
		repo:    repo,
	}
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues a token pair for an authenticated account.
func (s *Service) Login(account identity.Account) (TokenPair, error) {
	now := time.Now()
	access, accessExp, err := s.access.sign(account.Address.String(), account.TokenVersion, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.refresh.sign(account.Address.String(), account.TokenVersion, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(accessExp.Sub(now).Seconds())}, nil
}

// Refresh verifies the refresh token and returns a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.refresh.parse(refreshToken)
	if err != nil {
		return "", 0, err
	}
	account, err := s.current(ctx, claims)
	if err != nil {
		return "", 0, err
	}
	signed, _, err := s.access.sign(account.Address.String(), account.TokenVersion, time.Now())
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.access.ttl.Seconds()), nil
}

// Verify checks an access token and returns the caller address it was issued to.
func (s *Service) Verify(ctx context.Context, accessToken string) (ledger.Address, error) {
	claims, err := s.access.parse(accessToken)
	if err != nil {
		return "", err
	}
	account, err := s.current(ctx, claims)
	if err != nil {
		return "", err
	}
	return account.Address, nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, address ledger.Address) error {
	account, err := s.repo.FindByAddress(ctx, address)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, account.Address, account.TokenVersion+1)
}

func (s *Service) current(ctx context.Context, claims *Claims) (identity.Account, error) {
	address, err := ledger.ParseAddress(claims.Subject)
	if err != nil {
		return identity.Account{}, ErrInvalidToken
	}
	account, err := s.repo.FindByAddress(ctx, address)
	if err != nil {
		return identity.Account{}, ErrInvalidToken
	}
	if account.TokenVersion != claims.Version {
		return identity.Account{}, ErrInvalidToken
	}
	return account, nil
}
