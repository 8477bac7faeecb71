package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/debtledger/internal/ledger"
)

const minPassphraseLen = 8

var (
	// ErrAccountExists is returned when registering an address twice.
	ErrAccountExists = errors.New("account already registered")
	// ErrAccountNotFound is returned for unknown addresses.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidCredentials hides whether the address or the passphrase was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrWeakPassphrase rejects passphrases shorter than eight characters.
	ErrWeakPassphrase = errors.New("passphrase must be at least 8 characters")
	// ErrReservedAddress is returned when registering the ledger owner's address.
	// The owner account is provisioned from configuration only.
	ErrReservedAddress = errors.New("address is reserved")
	// ErrInvalidPassphraseHash rejects a provisioned hash that is not bcrypt.
	ErrInvalidPassphraseHash = errors.New("passphrase hash is not a bcrypt hash")
)

// Service manages account registration and authentication.
type Service struct {
	repo  Repository
	owner ledger.Address
}

// NewService creates a new identity service. owner cannot be claimed through
// Register; see ProvisionOwner.
func NewService(repo Repository, owner ledger.Address) *Service {
	return &Service{repo: repo, owner: owner}
}

// Register stores a new account with a bcrypt-hashed passphrase.
func (s *Service) Register(ctx context.Context, creds Credentials) (Account, error) {
	address, err := ledger.ParseAddress(creds.Address)
	if err != nil {
		return Account{}, err
	}
	if address == s.owner {
		return Account{}, ErrReservedAddress
	}
	if len(creds.Passphrase) < minPassphraseLen {
		return Account{}, ErrWeakPassphrase
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Passphrase), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	account := Account{
		Address:        address,
		PassphraseHash: hash,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return Account{}, err
	}
	return account, nil
}

// ProvisionOwner creates the owner account with a pre-computed bcrypt hash, or
// replaces the stored hash when the account already exists.
func (s *Service) ProvisionOwner(ctx context.Context, passphraseHash []byte) error {
	if _, err := bcrypt.Cost(passphraseHash); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPassphraseHash, err)
	}
	err := s.repo.Create(ctx, Account{
		Address:        s.owner,
		PassphraseHash: passphraseHash,
		CreatedAt:      time.Now().UTC(),
	})
	if errors.Is(err, ErrAccountExists) {
		return s.repo.UpdatePassphraseHash(ctx, s.owner, passphraseHash)
	}
	return err
}

// Authenticate verifies the passphrase for an address.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Account, error) {
	address, err := ledger.ParseAddress(creds.Address)
	if err != nil {
		return Account{}, ErrInvalidCredentials
	}
	account, err := s.repo.FindByAddress(ctx, address)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword(account.PassphraseHash, []byte(creds.Passphrase)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// Find returns the account for address.
func (s *Service) Find(ctx context.Context, address ledger.Address) (Account, error) {
	return s.repo.FindByAddress(ctx, address)
}
