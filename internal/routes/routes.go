package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/debtledger/internal/auth"
	"github.com/congo-pay/debtledger/internal/config"
	"github.com/congo-pay/debtledger/internal/debts"
	"github.com/congo-pay/debtledger/internal/identity"
	"github.com/congo-pay/debtledger/internal/ledger"
	"github.com/congo-pay/debtledger/internal/metrics"
	"github.com/congo-pay/debtledger/internal/middleware"
	"github.com/congo-pay/debtledger/internal/notification"
)

const setupTimeout = 5 * time.Second

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.LogPretty {
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, d.Registry)

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	backend, err := newLedger(ctx, d)
	if err != nil {
		return err
	}

	notifiers := notification.Multi{notification.NewLoggerNotifier(d.Logger)}
	if d.Cache != nil {
		notifiers = append(notifiers, notification.NewRedisNotifier(d.Cache, d.Cfg.RedisPrefix))
	}
	debtSvc := debts.NewService(backend, notifiers, metrics.New(d.Registry), d.Logger)

	var identityRepo identity.Repository
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
	}
	identitySvc := identity.NewService(identityRepo, d.Cfg.Owner)
	if d.Cfg.OwnerPassphraseHash != "" {
		if err := identitySvc.ProvisionOwner(ctx, []byte(d.Cfg.OwnerPassphraseHash)); err != nil {
			return fmt.Errorf("provision owner account: %w", err)
		}
	} else {
		d.Logger.Warn("OWNER_PASSPHRASE_HASH not set; owner login disabled")
	}
	authSvc := auth.NewService(d.Cfg, identityRepo)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	jwtmw := middleware.JWTAuth(authSvc)
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.RedisPrefix, d.Cfg.LoginRateLimit)
	idempotency := middleware.Idempotency(d.Cache, d.Cfg.RedisPrefix, d.Cfg.IdempotencyTTL, d.Logger)

	RegisterAuthRoutes(api, auth.NewHandler(identitySvc, authSvc), rateLimiter, jwtmw)
	RegisterDebtRoutes(api, debts.NewHandler(debtSvc), jwtmw, idempotency)
	RegisterMeRoute(api, debtSvc, jwtmw)

	d.Logger.Info("routes ready",
		slog.String("backend", d.Cfg.Backend),
		slog.String("owner", backend.Owner().String()),
		slog.Bool("redis", d.Cache != nil),
		slog.Bool("postgres", d.DB != nil),
	)
	return nil
}

func newLedger(ctx context.Context, d Deps) (ledger.Ledger, error) {
	switch d.Cfg.Backend {
	case config.BackendMemory, "":
		return ledger.NewInMemory(d.Cfg.Owner), nil
	case config.BackendPostgres:
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when LEDGER_BACKEND=%s", d.Cfg.Backend)
		}
		return ledger.NewPostgresLedger(ctx, d.DB, d.Cfg.Owner)
	case config.BackendRedis:
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when LEDGER_BACKEND=%s", d.Cfg.Backend)
		}
		return ledger.NewRedisLedger(ctx, d.Cache, d.Cfg.RedisPrefix, d.Cfg.Owner)
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", d.Cfg.Backend)
	}
}
