// Package ledgertest holds the behavioural suite every ledger backend must pass.
package ledgertest

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/debtledger/internal/ledger"
)

// Fixed accounts used by the suite.
var (
	Owner     = ledger.MustParseAddress("0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1")
	BorrowerA = ledger.MustParseAddress("0xffcf8fdee72ac11b5c542428b35eef5769c409f0")
	BorrowerB = ledger.MustParseAddress("0x22d491bde2303f2f43325b2108d26f1eaba1e32b")
)

// Factory builds an empty ledger owned by owner. Each subtest gets its own ledger.
type Factory func(t *testing.T, owner ledger.Address) ledger.Ledger

// Run executes the ledger contract suite against ledgers built by newLedger.
func Run(t *testing.T, newLedger Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, l ledger.Ledger)
	}{
		{"OwnerIsFixed", testOwner},
		{"Borrow", testBorrow},
		{"BorrowEmitsEvent", testBorrowEmitsEvent},
		{"BorrowZero", testBorrowZero},
		{"BorrowAccumulates", testBorrowAccumulates},
		{"BorrowOverflow", testBorrowOverflow},
		{"OwnerCannotBorrow", testOwnerCannotBorrow},
		{"Repay", testRepay},
		{"RepayEmitsEvent", testRepayEmitsEvent},
		{"RepayPartial", testRepayPartial},
		{"RepayRequiresOwner", testRepayRequiresOwner},
		{"RepayRejectsOverpay", testRepayRejectsOverpay},
		{"CallRepayZero", testCallRepayZero},
		{"CallRepayReportsFailure", testCallRepayReportsFailure},
		{"InvalidAmount", testInvalidAmount},
		{"EventHistory", testEventHistory},
		{"EventsAreCopies", testEventsAreCopies},
		{"ConcurrentBorrows", testConcurrentBorrows},
		{"ConcurrentBorrowsAndRepays", testConcurrentBorrowsAndRepays},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newLedger(t, Owner))
		})
	}
}

func n(v int64) *big.Int { return big.NewInt(v) }

func requireDebt(t *testing.T, l ledger.Ledger, account ledger.Address, want *big.Int) {
	t.Helper()
	got, err := l.Debt(context.Background(), account)
	require.NoError(t, err)
	require.Zerof(t, want.Cmp(got), "debt of %s: want %s, got %s", account, want, got)
}

func requireSingleEvent(t *testing.T, r ledger.Receipt, name string, by ledger.Address, value *big.Int) {
	t.Helper()
	require.True(t, r.Success)
	require.Len(t, r.Events, 1)
	ev := r.Events[0]
	assert.Equal(t, name, ev.Name)
	assert.Equal(t, by, ev.By)
	assert.Zerof(t, value.Cmp(ev.Value), "event value: want %s, got %s", value, ev.Value)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.At.IsZero())
}

func testOwner(t *testing.T, l ledger.Ledger) {
	require.Equal(t, Owner, l.Owner())
}

func testBorrow(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	requireDebt(t, l, BorrowerA, n(0))

	_, err := l.Borrow(ctx, BorrowerA, n(1000))
	require.NoError(t, err)
	requireDebt(t, l, BorrowerA, n(1000))
	requireDebt(t, l, BorrowerB, n(0))
}

func testBorrowEmitsEvent(t *testing.T, l ledger.Ledger) {
	r, err := l.Borrow(context.Background(), BorrowerA, n(1000))
	require.NoError(t, err)
	requireSingleEvent(t, r, ledger.EventBorrowed, BorrowerA, n(1000))
}

func testBorrowZero(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerB, n(500))
	require.NoError(t, err)

	r, err := l.Borrow(ctx, BorrowerB, n(0))
	require.NoError(t, err)
	requireSingleEvent(t, r, ledger.EventBorrowed, BorrowerB, n(0))
	requireDebt(t, l, BorrowerB, n(500))
}

func testBorrowAccumulates(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerB, n(500))
	require.NoError(t, err)
	_, err = l.Borrow(ctx, BorrowerB, n(500))
	require.NoError(t, err)
	requireDebt(t, l, BorrowerB, n(1000))
}

func testBorrowOverflow(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	max, err := ledger.ParseAmount("0xffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	require.NoError(t, err)

	_, err = l.Borrow(ctx, BorrowerA, max)
	require.NoError(t, err)

	r, err := l.Borrow(ctx, BorrowerA, n(1))
	require.ErrorIs(t, err, ledger.ErrArithmeticOverflow)
	require.Empty(t, r.Events)
	requireDebt(t, l, BorrowerA, max)

	_, err = l.Borrow(ctx, BorrowerA, n(1))
	require.ErrorIs(t, err, ledger.ErrArithmeticOverflow)

	events, err := l.Events(ctx, ledger.EventFilter{Account: BorrowerA})
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func testOwnerCannotBorrow(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	r, err := l.Borrow(ctx, Owner, n(500))
	require.NoError(t, err)
	require.False(t, r.Success)
	require.Empty(t, r.Events)
	requireDebt(t, l, Owner, n(0))

	events, err := l.Events(ctx, ledger.EventFilter{})
	require.NoError(t, err)
	require.Empty(t, events)
}

func testRepay(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerA, n(1000))
	require.NoError(t, err)

	_, err = l.Repay(ctx, Owner, BorrowerA, n(1000))
	require.NoError(t, err)
	requireDebt(t, l, BorrowerA, n(0))
}

func testRepayEmitsEvent(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerB, n(500))
	require.NoError(t, err)

	r, err := l.Repay(ctx, Owner, BorrowerB, n(500))
	require.NoError(t, err)
	requireSingleEvent(t, r, ledger.EventRepayed, BorrowerB, n(500))
}

func testRepayPartial(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerB, n(500))
	require.NoError(t, err)

	r, err := l.Repay(ctx, Owner, BorrowerB, n(499))
	require.NoError(t, err)
	requireSingleEvent(t, r, ledger.EventRepayed, BorrowerB, n(499))
	requireDebt(t, l, BorrowerB, n(1))
}

func testRepayRequiresOwner(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerB, n(500))
	require.NoError(t, err)

	_, err = l.Repay(ctx, BorrowerB, BorrowerB, n(500))
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	_, err = l.Repay(ctx, BorrowerA, BorrowerB, n(1))
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	requireDebt(t, l, BorrowerB, n(500))
}

func testRepayRejectsOverpay(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerB, n(500))
	require.NoError(t, err)

	_, err = l.Repay(ctx, Owner, BorrowerB, n(510))
	require.ErrorIs(t, err, ledger.ErrInsufficientDebt)
	requireDebt(t, l, BorrowerB, n(500))

	_, err = l.Repay(ctx, Owner, BorrowerA, n(1))
	require.ErrorIs(t, err, ledger.ErrInsufficientDebt)
}

func testCallRepayZero(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerB, n(500))
	require.NoError(t, err)

	ok, err := l.CallRepay(ctx, Owner, BorrowerB, n(0))
	require.NoError(t, err)
	require.True(t, ok)
	requireDebt(t, l, BorrowerB, n(500))

	ok, err = l.CallRepay(ctx, Owner, BorrowerB, n(500))
	require.NoError(t, err)
	require.True(t, ok)
	requireDebt(t, l, BorrowerB, n(500))

	events, err := l.Events(ctx, ledger.EventFilter{Account: BorrowerB})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, ledger.EventBorrowed, events[0].Name)
}

func testCallRepayReportsFailure(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerB, n(500))
	require.NoError(t, err)

	ok, err := l.CallRepay(ctx, BorrowerB, BorrowerB, n(1))
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	require.False(t, ok)

	ok, err = l.CallRepay(ctx, Owner, BorrowerB, n(501))
	require.ErrorIs(t, err, ledger.ErrInsufficientDebt)
	require.False(t, ok)
}

func testInvalidAmount(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerA, n(-1))
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	_, err = l.Borrow(ctx, BorrowerA, nil)
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)

	tooWide := new(big.Int).Add(ledger.MaxBalance, big.NewInt(1))
	_, err = l.Repay(ctx, Owner, BorrowerA, tooWide)
	require.ErrorIs(t, err, ledger.ErrInvalidAmount)
	requireDebt(t, l, BorrowerA, n(0))
}

func testEventHistory(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerA, n(100))
	require.NoError(t, err)
	_, err = l.Borrow(ctx, BorrowerB, n(200))
	require.NoError(t, err)
	_, err = l.Repay(ctx, Owner, BorrowerA, n(40))
	require.NoError(t, err)

	all, err := l.Events(ctx, ledger.EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{ledger.EventBorrowed, ledger.EventBorrowed, ledger.EventRepayed},
		[]string{all[0].Name, all[1].Name, all[2].Name})

	forA, err := l.Events(ctx, ledger.EventFilter{Account: BorrowerA})
	require.NoError(t, err)
	require.Len(t, forA, 2)
	assert.Zero(t, n(40).Cmp(forA[1].Value))

	latest, err := l.Events(ctx, ledger.EventFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, ledger.EventRepayed, latest[0].Name)
}

func testEventsAreCopies(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	receipt, err := l.Borrow(ctx, BorrowerA, n(100))
	require.NoError(t, err)
	receipt.Events[0].Value.SetInt64(1)

	events, err := l.Events(ctx, ledger.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Zero(t, n(100).Cmp(events[0].Value))
	events[0].Value.SetInt64(2)

	again, err := l.Events(ctx, ledger.EventFilter{})
	require.NoError(t, err)
	require.Zero(t, n(100).Cmp(again[0].Value), "history changed through a returned event: %s", again[0].Value)
}

// contendedWorkers is high enough that optimistic backends see repeated conflicts.
const contendedWorkers = 200

func testConcurrentBorrows(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < contendedWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Borrow(ctx, BorrowerA, n(1)); err != nil {
				t.Errorf("borrow: %v", err)
			}
		}()
	}
	wg.Wait()

	requireDebt(t, l, BorrowerA, n(contendedWorkers))
	events, err := l.Events(ctx, ledger.EventFilter{Account: BorrowerA})
	require.NoError(t, err)
	require.Len(t, events, contendedWorkers)
}

func testConcurrentBorrowsAndRepays(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	_, err := l.Borrow(ctx, BorrowerA, n(contendedWorkers))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < contendedWorkers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := l.Borrow(ctx, BorrowerA, n(2)); err != nil {
				t.Errorf("borrow: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := l.Repay(ctx, Owner, BorrowerA, n(1)); err != nil {
				t.Errorf("repay: %v", err)
			}
		}()
	}
	wg.Wait()

	// start + 2 per borrow - 1 per repay
	requireDebt(t, l, BorrowerA, n(2*contendedWorkers))
}
