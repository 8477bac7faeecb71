package debts

import (
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/debtledger/internal/ledger"
	"github.com/congo-pay/debtledger/internal/middleware"
)

const maxEventsLimit = 1000

// Handler exposes debt ledger HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a debts handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Owner returns the ledger owner address.
func (h *Handler) Owner(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"owner": h.service.Owner()})
}

// Debt returns the outstanding debt of the :account path parameter.
func (h *Handler) Debt(c *fiber.Ctx) error {
	account, err := ledger.ParseAddress(c.Params("account"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	debt, err := h.service.Debt(c.UserContext(), account)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(DebtResponse{Account: account.String(), Debt: debt.String()})
}

// Events lists ledger events, optionally filtered by ?account= and capped by ?limit=.
func (h *Handler) Events(c *fiber.Ctx) error {
	var filter ledger.EventFilter
	if raw := c.Query("account"); raw != "" {
		account, err := ledger.ParseAddress(raw)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		filter.Account = account
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 || limit > maxEventsLimit {
			return fiber.NewError(http.StatusBadRequest, "limit must be between 0 and 1000")
		}
		filter.Limit = limit
	}

	events, err := h.service.Events(c.UserContext(), filter)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"events": toMessages(events)})
}

// Borrow records new debt for the authenticated caller.
func (h *Handler) Borrow(c *fiber.Ctx) error {
	caller, ok := middleware.Caller(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	var req BorrowRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := req.Amount.Parse()
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	receipt, err := h.service.Borrow(c.UserContext(), caller, amount)
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusOK).JSON(toReceiptResponse(receipt))
}

// Repay reduces the debt of req.Account; the caller must be the ledger owner.
func (h *Handler) Repay(c *fiber.Ctx) error {
	caller, account, amount, err := h.parseRepay(c)
	if err != nil {
		return err
	}
	receipt, err := h.service.Repay(c.UserContext(), caller, account, amount)
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusOK).JSON(toReceiptResponse(receipt))
}

// CallRepay reports whether a Repay with the same body would succeed.
func (h *Handler) CallRepay(c *fiber.Ctx) error {
	caller, account, amount, err := h.parseRepay(c)
	if err != nil {
		return err
	}
	ok, err := h.service.CallRepay(c.UserContext(), caller, account, amount)
	if err != nil {
		return mapLedgerError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"success": ok})
}

func (h *Handler) parseRepay(c *fiber.Ctx) (ledger.Address, ledger.Address, *big.Int, error) {
	caller, ok := middleware.Caller(c)
	if !ok {
		return "", "", nil, fiber.NewError(http.StatusUnauthorized, "missing caller")
	}
	var req RepayRequest
	if err := c.BodyParser(&req); err != nil {
		return "", "", nil, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := ledger.ParseAddress(req.Account)
	if err != nil {
		return "", "", nil, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := req.Amount.Parse()
	if err != nil {
		return "", "", nil, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return caller, account, amount, nil
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidAddress):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrUnauthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrArithmeticOverflow), errors.Is(err, ledger.ErrInsufficientDebt):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
