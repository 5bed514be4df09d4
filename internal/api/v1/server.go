package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// ServerInterface lists the operations of public/docs/v1/openapi.yml.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (POST /accounts)
	PostAccounts(c *fiber.Ctx) error
	// (GET /account)
	GetAccount(c *fiber.Ctx) error
	// (POST /account/api-key)
	PostAccountAPIKey(c *fiber.Ctx) error
	// (GET /billing/status)
	GetBillingStatus(c *fiber.Ctx) error
	// (POST /billing/checkout)
	PostBillingCheckout(c *fiber.Ctx) error
	// (POST /billing/portal)
	PostBillingPortal(c *fiber.Ctx) error
	// (POST /billing/cancel)
	PostBillingCancel(c *fiber.Ctx) error
	// (GET /dashboard)
	GetDashboard(c *fiber.Ctx) error
}

// Middlewares secure the operations that require it.
// Auth runs on every operation with an apiKey security requirement;
// Access additionally runs on operations that need a paid plan.
type Middlewares struct {
	Auth   fiber.Handler
	Access fiber.Handler
}

func chain(hs ...fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

// RegisterHandlers mounts every operation of si on router.
func RegisterHandlers(router fiber.Router, si ServerInterface, mw Middlewares) {
	router.Get("/ping", si.GetPing)
	router.Post("/accounts", si.PostAccounts)

	router.Get("/account", append(chain(mw.Auth), si.GetAccount)...)
	router.Post("/account/api-key", append(chain(mw.Auth), si.PostAccountAPIKey)...)

	router.Get("/billing/status", append(chain(mw.Auth), si.GetBillingStatus)...)
	router.Post("/billing/checkout", append(chain(mw.Auth), si.PostBillingCheckout)...)
	router.Post("/billing/portal", append(chain(mw.Auth), si.PostBillingPortal)...)
	router.Post("/billing/cancel", append(chain(mw.Auth), si.PostBillingCancel)...)

	router.Get("/dashboard", append(chain(mw.Auth, mw.Access), si.GetDashboard)...)
}
