package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/cache"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/constants"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/database"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/mail"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/metrics"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/router"
)

func main() {
	app, manager := NewApplication()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("Shutting down...")
		manager.Stop()
		_ = app.ShutdownWithTimeout(10 * time.Second)
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	if err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	cfg, err := billing.LoadConfig()
	if err != nil {
		log.Fatalf("[Billing] Invalid configuration: %v", err)
	}
	if cfg.WebhookSecret == "" {
		log.Warn("[Billing] STRIPE_WEBHOOK_SECRET is not set, webhook deliveries will be answered with 503")
	}

	// JOBS
	manager := jobqueue.GetManager()
	sender, err := mail.NewSenderFromEnv()
	if err != nil {
		log.Fatalf("[Mail] Invalid configuration: %v", err)
	}
	accounts := repository.GetGlobalFactory().GetAccountRepository()
	manager.GetQueue().RegisterHandler(jobqueue.JobTypeBillingNotice,
		jobqueue.BillingNoticeHandler(accounts, sender, env.GetEnv("BILLING_URL", "http://localhost:4000/billing")))

	svc := billing.NewServiceFromDB(database.GetDB(), cfg,
		billing.WithNotifier(jobqueue.NewNotifier(manager.GetQueue(), cfg.NoticeDedupWindow)),
		billing.WithMetrics(metrics.Default()),
	)
	manager.SetTrialSweeper(svc, cfg.TrialSweepInterval)
	manager.Start()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName:   "InvoiceFox",
		BodyLimit: 1 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// prometheus metrics
	mountMetrics(app, env.GetEnv("METRICS_USER", "metrics"), env.GetEnv("METRICS_PASSWORD", ""))

	app.Get(constants.HealthRoute, healthHandler)

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: constants.DocsBasePath,
		FilePath: findBasePath() + constants.OpenAPIDocPath,
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	rateLimit, _ := strconv.Atoi(env.GetEnv("API_RATE_LIMIT", "60"))
	router.InstallRouter(app, router.Dependencies{
		Billing:        svc,
		Accounts:       accounts,
		LimiterStorage: cache.LimiterStorage(2),
		RateLimit:      rateLimit,
	})

	return app, manager
}

// mountMetrics exposes the Prometheus handler behind basic auth. Without a
// password the route is not mounted at all.
func mountMetrics(app *fiber.App, user, password string) bool {
	if user == "" || password == "" {
		log.Warn("[Metrics] METRICS_USER or METRICS_PASSWORD not set, /metrics is disabled")
		return false
	}
	app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{
		Users: map[string]string{user: password},
	}), adaptor.HTTPHandler(metrics.Handler()))
	return true
}

func healthHandler(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.Map{"database": "ok", "cache": "ok"}
	code := fiber.StatusOK
	if sqlDB, err := database.GetDB().DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status["database"] = "unavailable"
		code = fiber.StatusServiceUnavailable
	}
	if err := cache.Ping(ctx); err != nil {
		status["cache"] = "unavailable"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(status)
}

func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + constants.OpenAPIDocPath); err == nil {
			return path
		}
	}
	return "./"
}
