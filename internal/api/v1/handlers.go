package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to existing controllers to keep behavior consistent
	"github.com/ManuelReschke/InvoiceFox/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	accounts *controllers.AccountController
	billing  *controllers.BillingController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(accounts *controllers.AccountController, billing *controllers.BillingController) *APIServer {
	return &APIServer{accounts: accounts, billing: billing}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostAccounts registers a new account. Public.
func (s *APIServer) PostAccounts(c *fiber.Ctx) error {
	return s.accounts.HandleRegister(c)
}

// GetAccount returns the account behind the API key.
func (s *APIServer) GetAccount(c *fiber.Ctx) error {
	return s.accounts.HandleProfile(c)
}

func (s *APIServer) PostAccountAPIKey(c *fiber.Ctx) error {
	return s.accounts.HandleRotateAPIKey(c)
}

func (s *APIServer) GetBillingStatus(c *fiber.Ctx) error {
	return s.billing.HandleStatus(c)
}

func (s *APIServer) PostBillingCheckout(c *fiber.Ctx) error {
	return s.billing.HandleCheckout(c)
}

func (s *APIServer) PostBillingPortal(c *fiber.Ctx) error {
	return s.billing.HandlePortal(c)
}

func (s *APIServer) PostBillingCancel(c *fiber.Ctx) error {
	return s.billing.HandleCancel(c)
}

// GetDashboard is only reachable through the access gate.
func (s *APIServer) GetDashboard(c *fiber.Ctx) error {
	return s.accounts.HandleDashboard(c)
}
