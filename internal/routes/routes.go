package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/audit"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/auth"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/authmethod"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/chain"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/config"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/deposit"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/identity"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/metrics"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/middleware"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/notification"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/recovery"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Provider chain.Provider
	Metrics  *metrics.Metrics
	Audit    *audit.Recorder
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.AccessLog(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	// Health and metrics
	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Core primitives
	engine, err := zk.NewEngine(d.Cfg.CommitmentKey)
	if err != nil {
		return err
	}
	issuer, err := auth.NewIssuer(d.Cfg.JWTSecret, d.Cfg.AccessTokenTTL)
	if err != nil {
		return err
	}
	provider := d.Provider
	if provider == nil {
		provider = chain.NewSimulatedProvider(d.Cfg.DepositMinConfirmations)
	}
	notifier := notification.NewLoggerNotifier(d.Logger)

	// Repositories: Postgres in deployment, in-memory fallback in dev.
	var (
		identityRepo identity.Repository
		methodRepo   authmethod.Repository
		depositRepo  deposit.Repository
		recoveryRepo recovery.Repository
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		methodRepo = authmethod.NewPostgresRepository(d.DB)
		depositRepo = deposit.NewPostgresRepository(d.DB)
		recoveryRepo = recovery.NewPostgresRepository(d.DB)
	} else {
		identityRepo = identity.NewMemoryRepository()
		methodRepo = authmethod.NewMemoryRepository()
		depositRepo = deposit.NewMemoryRepository()
		recoveryRepo = recovery.NewMemoryRepository()
	}

	// Services and handlers
	methodSvc := authmethod.NewService(methodRepo, authmethod.NewRegistry(d.Logger), d.Audit)
	depositSvc := deposit.NewService(depositRepo, engine, provider, deposit.Options{
		ScriptAddress:    d.Cfg.ScriptAddress,
		Amount:           d.Cfg.DepositAmount,
		MaxAttempts:      d.Cfg.DepositMaxAttempts,
		MinConfirmations: d.Cfg.DepositMinConfirmations,
		Logger:           d.Logger,
		Metrics:          d.Metrics,
		Audit:            d.Audit,
		Notifier:         notifier,
	})
	identitySvc := identity.NewService(identityRepo, engine, methodSvc, depositSvc, issuer, identity.Options{
		Logger: d.Logger,
		Audit:  d.Audit,
	})
	recoverySvc := recovery.NewService(recoveryRepo, identitySvc, recovery.Options{
		PhoneChange:     recovery.Policy{Window: d.Cfg.PhoneChangeWindow, MaxAttempts: d.Cfg.PhoneChangeMaxAttempts},
		AccountRecovery: recovery.Policy{Window: d.Cfg.RecoveryWindow, MaxAttempts: d.Cfg.RecoveryMaxAttempts},
		Logger:          d.Logger,
		Metrics:         d.Metrics,
		Audit:           d.Audit,
		Notifier:        notifier,
	})

	identityHandler := identity.NewHandler(identitySvc)
	depositHandler := deposit.NewHandler(depositSvc)
	recoveryHandler := recovery.NewHandler(recoverySvc)
	methodHandler := authmethod.NewHandler(methodSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	loginLimiter := middleware.LoginRateLimit(d.Cache, 5)
	verifyLimiter := middleware.AttemptRateLimit(d.Cache, "deposit_verify", "id", 10)
	recoveryLimiter := middleware.AttemptRateLimit(d.Cache, "recovery_attempt", "id", 10)

	RegisterIdentityRoutes(api, identityHandler, loginLimiter)
	RegisterDepositRoutes(api, depositHandler, verifyLimiter)
	RegisterRecoveryRoutes(api, recoveryHandler, recoveryLimiter)

	// Protected routes
	protected := api.Group("", middleware.RequireAuth(issuer))
	RegisterProtectedIdentityRoutes(protected, identityHandler)
	RegisterProtectedDepositRoutes(protected, depositHandler)
	RegisterAuthMethodRoutes(protected, methodHandler)
	RegisterPhoneChangeRoute(protected, recoveryHandler)

	return nil
}
