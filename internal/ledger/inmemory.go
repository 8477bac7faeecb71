package ledger

import (
	"context"
	"math/big"
	"sync"
)

type inMemoryLedger struct {
	mu     sync.Mutex
	owner  Address
	debts  map[Address]*big.Int
	events []Event
}

// NewInMemory creates a concurrency-safe in-memory ledger owned by owner.
func NewInMemory(owner Address) Ledger {
	return &inMemoryLedger{
		owner: owner,
		debts: make(map[Address]*big.Int),
	}
}

func (l *inMemoryLedger) Owner() Address {
	return l.owner
}

func (l *inMemoryLedger) balance(account Address) *big.Int {
	if v, ok := l.debts[account]; ok {
		return v
	}
	return new(big.Int)
}

func (l *inMemoryLedger) Borrow(_ context.Context, caller Address, amount *big.Int) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, applied, err := borrowTransition(l.owner, caller, l.balance(caller), amount)
	if err != nil {
		return Receipt{}, err
	}
	if !applied {
		return Receipt{Success: false}, nil
	}

	l.debts[caller] = next
	ev := newEvent(EventBorrowed, caller, amount)
	l.events = append(l.events, ev)
	return Receipt{Success: true, Events: []Event{ev.clone()}}, nil
}

func (l *inMemoryLedger) Repay(_ context.Context, caller, account Address, amount *big.Int) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next, err := repayTransition(l.owner, caller, l.balance(account), amount)
	if err != nil {
		return Receipt{}, err
	}

	l.debts[account] = next
	ev := newEvent(EventRepayed, account, amount)
	l.events = append(l.events, ev)
	return Receipt{Success: true, Events: []Event{ev.clone()}}, nil
}

func (l *inMemoryLedger) CallRepay(_ context.Context, caller, account Address, amount *big.Int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := repayTransition(l.owner, caller, l.balance(account), amount); err != nil {
		return false, err
	}
	return true, nil
}

func (l *inMemoryLedger) Debt(_ context.Context, account Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(account)), nil
}

func (l *inMemoryLedger) Events(_ context.Context, filter EventFilter) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return filterEvents(l.events, filter), nil
}
