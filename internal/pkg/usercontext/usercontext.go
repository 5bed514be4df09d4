package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

// AccountContext represents the authenticated caller of a request
type AccountContext struct {
	AccountID  uint   `json:"account_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsLoggedIn bool   `json:"is_logged_in"`
}

// Set stores the account context of an authenticated request.
func Set(c *fiber.Ctx, account *models.Account) {
	c.Locals(KeyAccountContext, AccountContext{
		AccountID:  account.ID,
		Name:       account.Name,
		Email:      account.Email,
		IsLoggedIn: true,
	})
	c.Locals(KeyFromProtected, true)
	c.Locals(KeyAccountID, account.ID)
}

// Get retrieves the account context from fiber context
// Returns an anonymous context if none is set
func Get(c *fiber.Ctx) AccountContext {
	if ctx, ok := c.Locals(KeyAccountContext).(AccountContext); ok {
		return ctx
	}
	return AccountContext{IsLoggedIn: false}
}

// IsLoggedIn checks if the request carries an authenticated account
func IsLoggedIn(c *fiber.Ctx) bool {
	return Get(c).IsLoggedIn
}

// AccountID returns the current account's ID, or 0 if not authenticated
func AccountID(c *fiber.Ctx) uint {
	return Get(c).AccountID
}

// Subscription returns the subscription loaded by the access gate, if any.
func Subscription(c *fiber.Ctx) *models.Subscription {
	sub, _ := c.Locals(KeySubscription).(*models.Subscription)
	return sub
}
