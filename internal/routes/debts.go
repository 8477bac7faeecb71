package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/debtledger/internal/debts"
)

// RegisterDebtRoutes wires the ledger endpoints. Reads are public; mutations
// need a bearer token and an Idempotency-Key.
func RegisterDebtRoutes(r fiber.Router, h *debts.Handler, jwtmw, idempotency fiber.Handler) {
	r.Get("/owner", h.Owner)
	r.Get("/events", h.Events)

	group := r.Group("/debts")
	group.Post("/borrow", jwtmw, idempotency, h.Borrow)
	group.Post("/repay", jwtmw, idempotency, h.Repay)
	group.Post("/repay/call", jwtmw, h.CallRepay)
	group.Get("/:account", h.Debt)
}
