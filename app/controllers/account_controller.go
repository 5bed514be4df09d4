package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/app/repository"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/usercontext"
)

// AccountController serves registration and the authenticated account resources.
type AccountController struct {
	svc      *billing.Service
	accounts repository.AccountRepository
}

func NewAccountController(svc *billing.Service, accounts repository.AccountRepository) *AccountController {
	return &AccountController{svc: svc, accounts: accounts}
}

// HandleRegister creates an account together with its subscription row.
// The raw API key is only ever returned here and by HandleRotateAPIKey.
func (ac *AccountController) HandleRegister(c *fiber.Ctx) error {
	var in billing.RegisterInput
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failure", "message": "Invalid request body"})
	}
	in.IPv4, in.IPv6 = GetClientIP(c)

	reg, err := ac.svc.Register(c.UserContext(), in)
	if err != nil {
		return respondError(c, errorStatus(err), err)
	}

	view := billing.NewStatusView(reg.Subscription, ac.svc.Config(), ac.svc.Now())
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"account":      accountJSON(reg.Account),
		"apiKey":       reg.APIKey,
		"subscription": view,
	})
}

// HandleProfile returns the authenticated account.
func (ac *AccountController) HandleProfile(c *fiber.Ctx) error {
	account, done, err := ac.currentAccount(c)
	if done {
		return err
	}
	return c.JSON(accountJSON(account))
}

// HandleRotateAPIKey replaces the caller's API key. The old key stops working immediately.
func (ac *AccountController) HandleRotateAPIKey(c *fiber.Ctx) error {
	account, done, err := ac.currentAccount(c)
	if done {
		return err
	}

	raw, err := account.IssueAPIKey()
	if err != nil {
		log.Errorf("[Account] Could not generate api key for account %d: %v", account.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to generate API key"})
	}
	if err := ac.accounts.Update(account); err != nil {
		log.Errorf("[Account] Could not store api key for account %d: %v", account.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to store API key"})
	}

	log.Infof("[Account] Rotated api key for account %d", account.ID)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"apiKey":    raw,
		"prefix":    account.APIKeyPrefix,
		"createdAt": formatTimePtr(account.APIKeyCreatedAt),
	})
}

// HandleDashboard is the paid feature surface. The access gate has already
// admitted the request and loaded the subscription.
func (ac *AccountController) HandleDashboard(c *fiber.Ctx) error {
	account, done, err := ac.currentAccount(c)
	if done {
		return err
	}

	resp := fiber.Map{"account": accountJSON(account)}
	if sub := usercontext.Subscription(c); sub != nil {
		resp["tier"] = sub.Tier
		resp["status"] = sub.Status
		resp["trialEnd"] = formatTimePtr(sub.TrialEnd)
	}
	return c.JSON(resp)
}

// currentAccount loads the authenticated account. When done is true the
// error response has been written and err is the result of writing it.
func (ac *AccountController) currentAccount(c *fiber.Ctx) (account *models.Account, done bool, err error) {
	accountID := usercontext.AccountID(c)
	if accountID == 0 {
		return nil, true, unauthorized(c)
	}

	account, err = ac.accounts.GetByID(accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, true, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Account not found"})
		}
		log.Errorf("[Account] Loading account %d failed: %v", accountID, err)
		return nil, true, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load account"})
	}
	return account, false, nil
}

func accountJSON(a *models.Account) fiber.Map {
	return fiber.Map{
		"id":               a.ID,
		"name":             a.Name,
		"email":            a.Email,
		"status":           a.Status,
		"apiKeyPrefix":     a.APIKeyPrefix,
		"apiKeyCreatedAt":  formatTimePtr(a.APIKeyCreatedAt),
		"apiKeyLastUsedAt": formatTimePtr(a.APIKeyLastUsedAt),
		"createdAt":        formatTimePtr(&a.CreatedAt),
	}
}
