package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/debtledger/internal/auth"
)

// RegisterAuthRoutes wires account registration and token endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter, jwtmw fiber.Handler) {
	r.Post("/accounts/register", h.Register)

	group := r.Group("/auth")
	group.Post("/login", rateLimiter, h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", jwtmw, h.Logout)
}
