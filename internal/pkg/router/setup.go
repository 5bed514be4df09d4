package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/app/controllers"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services the routes are built from.
type Dependencies struct {
	Billing  *billing.Service
	Accounts repository.AccountRepository
	// LimiterStorage backs the /api rate limiter. Nil keeps the counters in memory.
	LimiterStorage fiber.Storage
	// RateLimit is the number of /api requests per client and minute. Zero uses the default.
	RateLimit int
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	billingController := controllers.NewBillingController(deps.Billing)
	accountController := controllers.NewAccountController(deps.Billing, deps.Accounts)

	// The webhook router goes first so provider deliveries never pass the /api limiter.
	setup(app,
		NewWebhookRouter(billingController),
		NewApiRouter(deps, accountController, billingController),
	)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
