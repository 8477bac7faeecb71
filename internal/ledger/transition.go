package ledger

import "math/big"

// borrowTransition computes the balance after caller borrows amount. applied is false
// when the caller is the owner, whose balance is never changed by borrowing.
func borrowTransition(owner, caller Address, current, amount *big.Int) (next *big.Int, applied bool, err error) {
	if err := checkAmount(amount); err != nil {
		return nil, false, err
	}
	if caller == owner {
		return current, false, nil
	}
	next = new(big.Int).Add(current, amount)
	if next.Cmp(MaxBalance) > 0 {
		return nil, false, ErrArithmeticOverflow
	}
	return next, true, nil
}

// repayTransition computes the balance after the owner repays amount of account's debt.
func repayTransition(owner, caller Address, current, amount *big.Int) (*big.Int, error) {
	if err := checkAmount(amount); err != nil {
		return nil, err
	}
	if caller != owner {
		return nil, ErrUnauthorized
	}
	if amount.Cmp(current) > 0 {
		return nil, ErrInsufficientDebt
	}
	return new(big.Int).Sub(current, amount), nil
}
