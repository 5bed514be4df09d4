package middleware

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/usercontext"
)

// SubscriptionLookup loads the subscription row of an account.
type SubscriptionLookup interface {
	Subscription(ctx context.Context, accountID uint) (*models.Subscription, error)
}

// RequireActiveSubscription lets a request through only when the caller's
// subscription grants access at the time of the request. It must run after
// APIKeyAuthMiddleware.
func RequireActiveSubscription(subs SubscriptionLookup, now func() time.Time) fiber.Handler {
	if now == nil {
		now = time.Now
	}
	return func(c *fiber.Ctx) error {
		accountID := usercontext.AccountID(c)
		if accountID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
		}

		sub, err := subs.Subscription(c.UserContext(), accountID)
		if err != nil && billing.KindOf(err) != billing.KindNotFound {
			log.Errorf("[Access] Subscription lookup for account %d failed: %v", accountID, err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "service_unavailable", "message": "Subscription could not be loaded"})
		}

		if !billing.HasAccess(sub, now()) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "subscription_required", "message": "An active subscription is required"})
		}

		c.Locals(usercontext.KeySubscription, sub)
		return c.Next()
	}
}
