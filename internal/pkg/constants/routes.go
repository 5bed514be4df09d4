package constants

// Static route constants
const (
	APIRoute      = "/api"
	APIV1Route    = "/v1"
	MetricsRoute  = "/metrics"
	HealthRoute   = "/healthz"
	DocsBasePath  = "/docs/api/"
	StripeWebhook = "/webhooks/stripe"
	// OpenAPI document relative to the project root
	OpenAPIDocPath = "public/docs/v1/openapi.yml"
)
