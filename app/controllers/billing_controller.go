package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/usercontext"
)

// StripeSignatureHeader carries the provider signature of a webhook delivery.
const StripeSignatureHeader = "Stripe-Signature"

// BillingController serves the subscription lifecycle endpoints and the provider webhook.
type BillingController struct {
	svc *billing.Service
}

func NewBillingController(svc *billing.Service) *BillingController {
	return &BillingController{svc: svc}
}

// HandleWebhook is the provider callback. The status code is the retry
// contract: 2xx acknowledges, 4xx rejects for good, 5xx asks for redelivery.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)

	res, err := bc.svc.ProcessWebhook(c.UserContext(), payload, c.Get(StripeSignatureHeader))
	if err != nil {
		return respondError(c, webhookStatus(err), err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"eventId":   res.EventID,
		"outcome":   res.Outcome,
		"duplicate": res.Duplicate,
	})
}

// HandleStatus returns the caller's subscription status view.
func (bc *BillingController) HandleStatus(c *fiber.Ctx) error {
	accountID := usercontext.AccountID(c)
	if accountID == 0 {
		return unauthorized(c)
	}

	view, err := bc.svc.Status(c.UserContext(), accountID)
	if err != nil {
		return respondError(c, errorStatus(err), err)
	}
	return c.JSON(view)
}

// HandleCheckout issues a hosted checkout session for the caller's plan.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	accountID := usercontext.AccountID(c)
	if accountID == 0 {
		return unauthorized(c)
	}

	var in billing.CheckoutInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failure", "message": "Invalid request body"})
	}

	res, err := bc.svc.CreateCheckout(c.UserContext(), accountID, in)
	if err != nil {
		if errorStatus(err) >= fiber.StatusInternalServerError {
			log.Errorf("[Billing] Checkout for account %d failed: %v", accountID, err)
		}
		return respondError(c, errorStatus(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// HandlePortal issues a billing portal session for the caller's provider customer.
func (bc *BillingController) HandlePortal(c *fiber.Ctx) error {
	accountID := usercontext.AccountID(c)
	if accountID == 0 {
		return unauthorized(c)
	}

	var in billing.PortalInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failure", "message": "Invalid request body"})
	}

	res, err := bc.svc.CreatePortal(c.UserContext(), accountID, in)
	if err != nil {
		if errorStatus(err) >= fiber.StatusInternalServerError {
			log.Errorf("[Billing] Portal for account %d failed: %v", accountID, err)
		}
		return respondError(c, errorStatus(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// HandleCancel is the explicit disconnect action. Repeating it is harmless.
func (bc *BillingController) HandleCancel(c *fiber.Ctx) error {
	accountID := usercontext.AccountID(c)
	if accountID == 0 {
		return unauthorized(c)
	}

	if _, err := bc.svc.Cancel(c.UserContext(), accountID); err != nil {
		return respondError(c, errorStatus(err), err)
	}

	view, err := bc.svc.Status(c.UserContext(), accountID)
	if err != nil {
		return respondError(c, errorStatus(err), err)
	}
	return c.JSON(view)
}
