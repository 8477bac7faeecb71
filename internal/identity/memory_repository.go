package identity

import (
	"context"
	"sync"

	"github.com/congo-pay/debtledger/internal/ledger"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[ledger.Address]Account
}

// NewMemoryRepository builds an in-memory account store.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[ledger.Address]Account)}
}

func (r *memoryRepository) Create(_ context.Context, account Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[account.Address]; exists {
		return ErrAccountExists
	}
	r.accounts[account.Address] = account
	return nil
}

func (r *memoryRepository) FindByAddress(_ context.Context, address ledger.Address) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[address]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, address ledger.Address, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[address]
	if !ok {
		return ErrAccountNotFound
	}
	account.TokenVersion = version
	r.accounts[address] = account
	return nil
}

func (r *memoryRepository) UpdatePassphraseHash(_ context.Context, address ledger.Address, hash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[address]
	if !ok {
		return ErrAccountNotFound
	}
	account.PassphraseHash = append([]byte(nil), hash...)
	r.accounts[address] = account
	return nil
}
