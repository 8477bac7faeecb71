package debts

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/debtledger/internal/ledger"
	"github.com/congo-pay/debtledger/internal/logging"
	"github.com/congo-pay/debtledger/internal/metrics"
)

var (
	owner    = ledger.MustParseAddress("0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1")
	borrower = ledger.MustParseAddress("0xffcf8fdee72ac11b5c542428b35eef5769c409f0")
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []ledger.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, ev ledger.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func newTestService(t *testing.T) (*Service, *recordingNotifier, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	notifier := &recordingNotifier{}
	svc := NewService(ledger.NewInMemory(owner), notifier, metrics.New(reg), logging.Discard())
	return svc, notifier, reg
}

func operations(t *testing.T, reg *prometheus.Registry) int {
	t.Helper()
	n, err := testutil.GatherAndCount(reg, "debtledger_operations_total")
	require.NoError(t, err)
	return n
}

func TestServiceBorrowPublishesEvent(t *testing.T) {
	svc, notifier, reg := newTestService(t)
	ctx := context.Background()

	receipt, err := svc.Borrow(ctx, borrower, big.NewInt(100))
	require.NoError(t, err)
	require.True(t, receipt.Success)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, ledger.EventBorrowed, notifier.events[0].Name)
	assert.Equal(t, borrower, notifier.events[0].By)
	assert.Equal(t, 1, operations(t, reg))

	debt, err := svc.Debt(ctx, borrower)
	require.NoError(t, err)
	assert.Equal(t, "100", debt.String())
}

func TestServiceOwnerBorrowIsIgnored(t *testing.T) {
	svc, notifier, _ := newTestService(t)

	receipt, err := svc.Borrow(context.Background(), owner, big.NewInt(5))
	require.NoError(t, err)
	assert.False(t, receipt.Success)
	assert.Empty(t, notifier.events)
}

func TestServiceRepayByNonOwnerFails(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Borrow(ctx, borrower, big.NewInt(10))
	require.NoError(t, err)

	_, err = svc.Repay(ctx, borrower, borrower, big.NewInt(10))
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.Len(t, notifier.events, 1)

	ok, err := svc.CallRepay(ctx, borrower, borrower, big.NewInt(10))
	require.ErrorIs(t, err, ledger.ErrUnauthorized)
	assert.False(t, ok)
}

func TestServiceRepayPublishesEvent(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Borrow(ctx, borrower, big.NewInt(10))
	require.NoError(t, err)

	ok, err := svc.CallRepay(ctx, owner, borrower, big.NewInt(4))
	require.NoError(t, err)
	assert.True(t, ok)

	receipt, err := svc.Repay(ctx, owner, borrower, big.NewInt(4))
	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Len(t, notifier.events, 2)
	assert.Equal(t, ledger.EventRepayed, notifier.events[1].Name)

	events, err := svc.Events(ctx, ledger.EventFilter{Account: borrower})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestServiceNotifyFailureDoesNotFailOperation(t *testing.T) {
	svc, notifier, _ := newTestService(t)
	notifier.err = errors.New("broker down")

	receipt, err := svc.Borrow(context.Background(), borrower, big.NewInt(1))
	require.NoError(t, err)
	assert.True(t, receipt.Success)
}

func TestOutcomeLabels(t *testing.T) {
	cases := []struct {
		success bool
		err     error
		want    string
	}{
		{true, nil, "ok"},
		{false, nil, "ignored"},
		{false, ledger.ErrArithmeticOverflow, "overflow"},
		{false, ledger.ErrUnauthorized, "unauthorized"},
		{false, ledger.ErrInsufficientDebt, "insufficient_debt"},
		{false, ledger.ErrInvalidAmount, "invalid"},
		{false, errors.New("boom"), "error"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, outcome(tc.success, tc.err))
	}
}
