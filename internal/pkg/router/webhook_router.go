package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/app/controllers"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/constants"
)

// WebhookRouter mounts provider callbacks. They carry no API key and are not rate limited.
type WebhookRouter struct {
	billing *controllers.BillingController
}

func (w WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post(constants.StripeWebhook, w.billing.HandleWebhook)
}

func NewWebhookRouter(billing *controllers.BillingController) *WebhookRouter {
	return &WebhookRouter{billing: billing}
}
