package server

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/debtledger/internal/config"
	"github.com/congo-pay/debtledger/internal/ledger"
	"github.com/congo-pay/debtledger/internal/logging"
)

const (
	ownerAddr    = "0x90f8bf6a479f320ead074411a4b0e7944ea8c9c1"
	borrowerAddr = "0xffcf8fdee72ac11b5c542428b35eef5769c409f0"
	passphrase   = "correct horse battery"
	ownerPass    = "owner only passphrase"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(ownerPass), bcrypt.MinCost)
	require.NoError(t, err)
	return config.Config{
		AppName:         "DebtLedger",
		AppEnv:          "test",
		Backend:         config.BackendMemory,
		OwnerAddress:    ownerAddr,
		Owner:           ledger.MustParseAddress(ownerAddr),
		RedisPrefix:     "test",
		JWTSecret:       "access-secret",
		RefreshSecret:   "refresh-secret",
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		IdempotencyTTL:  time.Minute,
		LoginRateLimit:  5,

		OwnerPassphraseHash: string(hash),
	}
}

func newTestServer(t *testing.T) *fiber.App {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	srv, err := New(testConfig(t), nil, cache, logging.Discard())
	require.NoError(t, err)
	return srv.App()
}

type call struct {
	method string
	path   string
	token  string
	key    string
	body   string
}

func send(t *testing.T, app *fiber.App, c call) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if c.key != "" {
		req.Header.Set("Idempotency-Key", c.key)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func credentials(address, pass string) string {
	return `{"address":"` + address + `","passphrase":"` + pass + `"}`
}

func login(t *testing.T, app *fiber.App, address, pass string) string {
	t.Helper()
	status, body := send(t, app, call{method: fiber.MethodPost, path: "/api/v1/auth/login", body: credentials(address, pass)})
	require.Equal(t, fiber.StatusOK, status)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

func registerAndLogin(t *testing.T, app *fiber.App, address string) string {
	t.Helper()
	status, _ := send(t, app, call{method: fiber.MethodPost, path: "/api/v1/accounts/register", body: credentials(address, passphrase)})
	require.Equal(t, fiber.StatusCreated, status)
	return login(t, app, address, passphrase)
}

func TestDebtLifecycle(t *testing.T) {
	app := newTestServer(t)
	ownerToken := login(t, app, ownerAddr, ownerPass)
	borrowerToken := registerAndLogin(t, app, borrowerAddr)

	borrow := call{method: fiber.MethodPost, path: "/api/v1/debts/borrow", token: borrowerToken, key: "borrow-1", body: `{"amount":"100"}`}
	status, first := send(t, app, borrow)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, first["success"])

	// A retried request replays the stored receipt instead of borrowing twice.
	status, replayed := send(t, app, borrow)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, first, replayed)

	status, body := send(t, app, call{method: fiber.MethodGet, path: "/api/v1/debts/" + borrowerAddr})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "100", body["debt"])

	repay := `{"account":"` + borrowerAddr + `","amount":"40"}`
	status, body = send(t, app, call{method: fiber.MethodPost, path: "/api/v1/debts/repay", token: borrowerToken, key: "repay-1", body: repay})
	require.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Forbidden", body["error"])
	assert.NotEmpty(t, body["message"])

	status, body = send(t, app, call{method: fiber.MethodPost, path: "/api/v1/debts/repay/call", token: ownerToken, body: repay})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, _ = send(t, app, call{method: fiber.MethodPost, path: "/api/v1/debts/repay", token: ownerToken, key: "repay-1", body: repay})
	require.Equal(t, fiber.StatusOK, status)

	status, body = send(t, app, call{method: fiber.MethodGet, path: "/api/v1/me", token: borrowerToken})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, borrowerAddr, body["address"])
	assert.Equal(t, false, body["is_owner"])
	assert.Equal(t, "60", body["debt"])

	status, body = send(t, app, call{method: fiber.MethodGet, path: "/api/v1/events?account=" + borrowerAddr})
	require.Equal(t, fiber.StatusOK, status)
	events := body["events"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, ledger.EventBorrowed, events[0].(map[string]any)["event"])
	assert.Equal(t, ledger.EventRepayed, events[1].(map[string]any)["event"])
}

func TestOwnerBorrowIsIgnored(t *testing.T) {
	app := newTestServer(t)
	ownerToken := login(t, app, ownerAddr, ownerPass)

	status, body := send(t, app, call{method: fiber.MethodPost, path: "/api/v1/debts/borrow", token: ownerToken, key: "k", body: `{"amount":"5"}`})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, body["events"])
}

func TestMutationsRequireToken(t *testing.T) {
	app := newTestServer(t)

	status, body := send(t, app, call{method: fiber.MethodPost, path: "/api/v1/debts/borrow", key: "k", body: `{"amount":"5"}`})
	require.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Unauthorized", body["error"])
}

func TestLogoutInvalidatesToken(t *testing.T) {
	app := newTestServer(t)
	token := registerAndLogin(t, app, borrowerAddr)

	status, _ := send(t, app, call{method: fiber.MethodPost, path: "/api/v1/auth/logout", token: token})
	require.Equal(t, fiber.StatusOK, status)

	status, _ = send(t, app, call{method: fiber.MethodGet, path: "/api/v1/me", token: token})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRegisterTwiceConflicts(t *testing.T) {
	app := newTestServer(t)
	registerAndLogin(t, app, borrowerAddr)

	creds := `{"address":"` + borrowerAddr + `","passphrase":"` + passphrase + `"}`
	status, _ := send(t, app, call{method: fiber.MethodPost, path: "/api/v1/accounts/register", body: creds})
	assert.Equal(t, fiber.StatusConflict, status)
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestServer(t)

	status, body := send(t, app, call{method: fiber.MethodGet, path: "/healthz"})
	require.Equal(t, fiber.StatusOK, status)
	stores := body["status"].(map[string]any)
	assert.Equal(t, "ok", stores["redis"])
	assert.Equal(t, "disabled", stores["postgres"])

	token := registerAndLogin(t, app, borrowerAddr)
	status, _ = send(t, app, call{method: fiber.MethodPost, path: "/api/v1/debts/borrow", token: token, key: "m", body: `{"amount":"1"}`})
	require.Equal(t, fiber.StatusOK, status)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `debtledger_operations_total{operation="borrow",outcome="ok"} 1`)
	assert.Contains(t, string(raw), `debtledger_events_total{event="Borrowed"} 1`)
}

func TestOwnerAddressCannotBeRegistered(t *testing.T) {
	app := newTestServer(t)
	borrowerToken := registerAndLogin(t, app, borrowerAddr)
	status, _ := send(t, app, call{method: fiber.MethodPost, path: "/api/v1/debts/borrow", token: borrowerToken, key: "b", body: `{"amount":"100"}`})
	require.Equal(t, fiber.StatusOK, status)

	status, body := send(t, app, call{method: fiber.MethodPost, path: "/api/v1/accounts/register", body: credentials(ownerAddr, "attacker passphrase")})
	require.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Forbidden", body["error"])

	// Upper-cased hex is the same address.
	status, _ = send(t, app, call{method: fiber.MethodPost, path: "/api/v1/accounts/register", body: credentials("0x"+strings.ToUpper(ownerAddr[2:]), "attacker passphrase")})
	require.Equal(t, fiber.StatusForbidden, status)

	status, _ = send(t, app, call{method: fiber.MethodPost, path: "/api/v1/auth/login", body: credentials(ownerAddr, "attacker passphrase")})
	require.Equal(t, fiber.StatusUnauthorized, status)

	status, body = send(t, app, call{method: fiber.MethodGet, path: "/api/v1/debts/" + borrowerAddr})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "100", body["debt"])

	ownerToken := login(t, app, ownerAddr, ownerPass)
	status, body = send(t, app, call{method: fiber.MethodGet, path: "/api/v1/me", token: ownerToken})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["is_owner"])
}
