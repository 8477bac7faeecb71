package debts

import (
	"bytes"
	"encoding/json"
	"math/big"

	"github.com/congo-pay/debtledger/internal/ledger"
	"github.com/congo-pay/debtledger/internal/notification"
)

// AmountField accepts a JSON string (decimal or 0x hex) or a JSON integer.
type AmountField string

// UnmarshalJSON keeps the raw digits so values wider than float64 survive decoding.
func (a *AmountField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AmountField(s)
		return nil
	}
	*a = AmountField(b)
	return nil
}

// Parse validates the amount as a uint256.
func (a AmountField) Parse() (*big.Int, error) {
	return ledger.ParseAmount(string(a))
}

// BorrowRequest is the body of POST /debts/borrow.
type BorrowRequest struct {
	Amount AmountField `json:"amount"`
}

// RepayRequest is the body of POST /debts/repay and /debts/repay/call.
type RepayRequest struct {
	Account string      `json:"account"`
	Amount  AmountField `json:"amount"`
}

// ReceiptResponse renders a ledger receipt.
type ReceiptResponse struct {
	Success bool                   `json:"success"`
	Events  []notification.Message `json:"events"`
}

// DebtResponse renders an account balance.
type DebtResponse struct {
	Account string `json:"account"`
	Debt    string `json:"debt"`
}

func toReceiptResponse(r ledger.Receipt) ReceiptResponse {
	return ReceiptResponse{Success: r.Success, Events: toMessages(r.Events)}
}

func toMessages(events []ledger.Event) []notification.Message {
	out := make([]notification.Message, 0, len(events))
	for _, ev := range events {
		out = append(out, notification.NewMessage(ev))
	}
	return out
}
