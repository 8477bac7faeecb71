package debts

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/congo-pay/debtledger/internal/ledger"
	"github.com/congo-pay/debtledger/internal/metrics"
	"github.com/congo-pay/debtledger/internal/notification"
)

const (
	opBorrow    = "borrow"
	opRepay     = "repay"
	opCallRepay = "call_repay"
)

// Service fronts a ledger backend with metrics and event delivery.
type Service struct {
	ledger   ledger.Ledger
	notifier notification.Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService constructs a debts service. notifier and m may be nil.
func NewService(l ledger.Ledger, notifier notification.Notifier, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{ledger: l, notifier: notifier, metrics: m, logger: logger}
}

// Owner returns the ledger owner.
func (s *Service) Owner() ledger.Address {
	return s.ledger.Owner()
}

// Borrow records amount as new debt of caller.
func (s *Service) Borrow(ctx context.Context, caller ledger.Address, amount *big.Int) (ledger.Receipt, error) {
	receipt, err := s.ledger.Borrow(ctx, caller, amount)
	s.metrics.Operation(opBorrow, outcome(receipt.Success, err))
	if err != nil {
		return ledger.Receipt{}, err
	}
	if !receipt.Success {
		s.logger.Info("owner borrow ignored", slog.String("caller", caller.String()))
	}
	s.publish(ctx, receipt)
	return receipt, nil
}

// Repay reduces account's debt; only the owner may call it.
func (s *Service) Repay(ctx context.Context, caller, account ledger.Address, amount *big.Int) (ledger.Receipt, error) {
	receipt, err := s.ledger.Repay(ctx, caller, account, amount)
	s.metrics.Operation(opRepay, outcome(receipt.Success, err))
	if err != nil {
		if errors.Is(err, ledger.ErrUnauthorized) {
			s.logger.Warn("repay rejected", slog.String("caller", caller.String()), slog.String("account", account.String()))
		}
		return ledger.Receipt{}, err
	}
	s.publish(ctx, receipt)
	return receipt, nil
}

// CallRepay reports whether Repay would succeed, without side effects.
func (s *Service) CallRepay(ctx context.Context, caller, account ledger.Address, amount *big.Int) (bool, error) {
	ok, err := s.ledger.CallRepay(ctx, caller, account, amount)
	s.metrics.Operation(opCallRepay, outcome(ok, err))
	return ok, err
}

// Debt returns account's outstanding balance.
func (s *Service) Debt(ctx context.Context, account ledger.Address) (*big.Int, error) {
	return s.ledger.Debt(ctx, account)
}

// Events returns the ledger event history.
func (s *Service) Events(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	return s.ledger.Events(ctx, filter)
}

func (s *Service) publish(ctx context.Context, receipt ledger.Receipt) {
	for _, ev := range receipt.Events {
		s.metrics.Event(ev.Name)
		if s.notifier == nil {
			continue
		}
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.logger.Warn("event delivery failed", slog.String("event_id", ev.ID), slog.Any("error", err))
		}
	}
}

func outcome(success bool, err error) string {
	switch {
	case err == nil && success:
		return "ok"
	case err == nil:
		return "ignored"
	case errors.Is(err, ledger.ErrArithmeticOverflow):
		return "overflow"
	case errors.Is(err, ledger.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ledger.ErrInsufficientDebt):
		return "insufficient_debt"
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAddress):
		return "invalid"
	default:
		return "error"
	}
}
