package identity

import (
	"time"

	"github.com/congo-pay/debtledger/internal/ledger"
)

// Account is a registered ledger principal.
type Account struct {
	Address        ledger.Address
	PassphraseHash []byte
	TokenVersion   int
	CreatedAt      time.Time
}

// Credentials request structure.
type Credentials struct {
	Address    string
	Passphrase string
}
