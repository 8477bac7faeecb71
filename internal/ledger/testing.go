package ledger

import "math/big"

// SeedDebt is a test helper that sets the debt for an account when using the in-memory ledger.
func SeedDebt(l Ledger, account Address, amount *big.Int) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.debts[account] = new(big.Int).Set(amount)
	}
}
