package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginRateLimitPerAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, "test", 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	login := func(address string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(`{"address":"`+address+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	alice := "0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0"
	assert.Equal(t, fiber.StatusOK, login(alice))
	assert.Equal(t, fiber.StatusOK, login(strings.ToLower(alice)))
	assert.Equal(t, fiber.StatusTooManyRequests, login(alice))

	// Other addresses keep their own budget.
	assert.Equal(t, fiber.StatusOK, login("0x22d491bde2303f2f43325b2108d26f1eaba1e32b"))

	mr.FastForward(61 * time.Second)
	assert.Equal(t, fiber.StatusOK, login(alice))
}

func TestLoginRateLimitFallsBackToClientIP(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	app.Post("/login", LoginRateLimit(cache, "test", 2), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	send := func(body string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	// Missing and malformed bodies both count against the client IP.
	assert.Equal(t, fiber.StatusOK, send(`{}`))
	assert.Equal(t, fiber.StatusOK, send(`not json`))
	assert.Equal(t, fiber.StatusTooManyRequests, send(`{"address":""}`))

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "test:rl:login:"))
	assert.NotContains(t, keys[0], "0x")

	// A named address has its own budget.
	assert.Equal(t, fiber.StatusOK, send(`{"address":"0x22d491bde2303f2f43325b2108d26f1eaba1e32b"}`))
}

func TestLoginRateLimitWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Post("/login", LoginRateLimit(nil, "test", 1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/login", nil))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}
