package ledger

import (
	"fmt"
	"math/big"
	"strings"
)

// MaxBalance is the widest balance the ledger can hold (2^256 - 1).
var MaxBalance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// ParseAmount reads a decimal or 0x-prefixed hex amount within the uint256 range.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := checkAmount(v); err != nil {
		return nil, err
	}
	return v, nil
}

func checkAmount(v *big.Int) error {
	if v == nil {
		return fmt.Errorf("%w: missing", ErrInvalidAmount)
	}
	if v.Sign() < 0 || v.Cmp(MaxBalance) > 0 {
		return fmt.Errorf("%w: %s out of range", ErrInvalidAmount, v.String())
	}
	return nil
}
