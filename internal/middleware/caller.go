package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/debtledger/internal/ledger"
)

const callerKey = "caller"

// Caller returns the authenticated address stored by JWTAuth.
func Caller(c *fiber.Ctx) (ledger.Address, bool) {
	addr, ok := c.Locals(callerKey).(ledger.Address)
	return addr, ok && addr != ""
}

// WithCaller stores addr as the authenticated caller for downstream handlers.
func WithCaller(c *fiber.Ctx, addr ledger.Address) {
	c.Locals(callerKey, addr)
}
