package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/debtledger/internal/ledger"
)

// TokenVerifier resolves an access token into the address it was issued to.
type TokenVerifier interface {
	Verify(ctx context.Context, accessToken string) (ledger.Address, error)
}

// JWTAuth rejects requests without a valid bearer token and records the caller.
func JWTAuth(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("Bearer ") || !strings.EqualFold(authz[:len("Bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		token := strings.TrimSpace(authz[len("Bearer "):])
		caller, err := verifier.Verify(c.UserContext(), token)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		WithCaller(c, caller)
		return c.Next()
	}
}
