package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"
)

var (
	// ErrArithmeticOverflow occurs when a borrow would push a balance past MaxBalance.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrUnauthorized indicates the caller is not the ledger owner.
	ErrUnauthorized = errors.New("caller is not the ledger owner")

	// ErrInsufficientDebt occurs when a repayment exceeds the outstanding debt.
	ErrInsufficientDebt = errors.New("repayment exceeds outstanding debt")

	// ErrInvalidAmount indicates an amount outside the uint256 range.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidAddress indicates a malformed account address.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrOwnerMismatch is returned when a persistent backend is already bound to another owner.
	ErrOwnerMismatch = errors.New("ledger is bound to a different owner")
)

const (
	// EventBorrowed is emitted by a successful Borrow.
	EventBorrowed = "Borrowed"
	// EventRepayed is emitted by a successful Repay.
	EventRepayed = "Repayed"
)

// Event is a notification emitted by a state-mutating ledger call.
type Event struct {
	ID    string
	Name  string
	By    Address
	Value *big.Int
	At    time.Time
}

// Receipt captures the outcome of a state-mutating ledger call.
type Receipt struct {
	Success bool
	Events  []Event
}

// EventFilter narrows an event history query. A zero Limit returns everything.
type EventFilter struct {
	Account Address
	Limit   int
}

// Ledger defines the contract implemented by debt ledger backends.
type Ledger interface {
	Owner() Address
	Borrow(ctx context.Context, caller Address, amount *big.Int) (Receipt, error)
	Repay(ctx context.Context, caller, account Address, amount *big.Int) (Receipt, error)
	// CallRepay reports whether Repay would succeed without changing any state.
	CallRepay(ctx context.Context, caller, account Address, amount *big.Int) (bool, error)
	Debt(ctx context.Context, account Address) (*big.Int, error)
	Events(ctx context.Context, filter EventFilter) ([]Event, error)
}

func newEvent(name string, by Address, value *big.Int) Event {
	return Event{
		ID:    NewEventID(),
		Name:  name,
		By:    by,
		Value: new(big.Int).Set(value),
		At:    time.Now().UTC(),
	}
}

// clone returns a copy of e that shares no memory with the ledger's history.
func (e Event) clone() Event {
	if e.Value != nil {
		e.Value = new(big.Int).Set(e.Value)
	}
	return e
}

// filterEvents applies f to an emission-ordered history. The result holds copies.
func filterEvents(history []Event, f EventFilter) []Event {
	out := make([]Event, 0, len(history))
	for _, e := range history {
		if f.Account != "" && e.By != f.Account {
			continue
		}
		out = append(out, e.clone())
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}
