package router

import (
	"time"

	apiv1 "github.com/ManuelReschke/InvoiceFox/internal/api/v1"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/InvoiceFox/app/controllers"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/constants"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/middleware"
)

const defaultRateLimit = 60

type ApiRouter struct {
	deps     Dependencies
	accounts *controllers.AccountController
	billing  *controllers.BillingController
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	limit := h.deps.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}

	api := app.Group(constants.APIRoute, limiter.New(limiter.Config{
		Max:        limit,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many requests"})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group(constants.APIV1Route)
	apiServer := apiv1.NewAPIServer(h.accounts, h.billing)
	apiv1.RegisterHandlers(v1, apiServer, apiv1.Middlewares{
		Auth:   middleware.APIKeyAuthMiddleware(h.deps.Accounts),
		Access: middleware.RequireActiveSubscription(h.deps.Billing, h.deps.Billing.Now),
	})
}

func NewApiRouter(deps Dependencies, accounts *controllers.AccountController, billing *controllers.BillingController) *ApiRouter {
	return &ApiRouter{deps: deps, accounts: accounts, billing: billing}
}
