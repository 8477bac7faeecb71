package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/debtledger/internal/debts"
	"github.com/congo-pay/debtledger/internal/middleware"
)

// RegisterMeRoute exposes the authenticated caller's ledger position.
func RegisterMeRoute(r fiber.Router, svc *debts.Service, jwtmw fiber.Handler) {
	r.Get("/me", jwtmw, func(c *fiber.Ctx) error {
		caller, ok := middleware.Caller(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "missing caller")
		}
		debt, err := svc.Debt(c.UserContext(), caller)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"address":  caller,
			"is_owner": caller == svc.Owner(),
			"debt":     debt.String(),
		})
	})
}
