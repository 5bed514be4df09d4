package billing

import (
	"fmt"
	"strings"
	"time"

	cenv "github.com/caarlos0/env/v11"

	"github.com/ManuelReschke/InvoiceFox/app/models"
	"github.com/ManuelReschke/InvoiceFox/internal/pkg/env"
)

// Config carries every externally supplied billing setting.
type Config struct {
	StripeSecretKey    string        `env:"STRIPE_SECRET_KEY"`
	WebhookSecret      string        `env:"STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance   time.Duration `env:"STRIPE_WEBHOOK_TOLERANCE" envDefault:"5m"`
	WebhookTimeout     time.Duration `env:"BILLING_WEBHOOK_TIMEOUT" envDefault:"5s"`
	StandardPriceID    string        `env:"STRIPE_PRICE_STANDARD"`
	PromotionalPriceID string        `env:"STRIPE_PRICE_PROMOTIONAL"`
	TrialDays          int           `env:"BILLING_TRIAL_DAYS" envDefault:"14"`
	FreeSlots          int64         `env:"BILLING_FREE_SLOTS" envDefault:"0"`
	PromotionalSlots   int64         `env:"BILLING_PROMOTIONAL_SLOTS" envDefault:"100"`
	StandardMonthly    int64         `env:"BILLING_STANDARD_MONTHLY_CENTS" envDefault:"1900"`
	PromotionalMonthly int64         `env:"BILLING_PROMOTIONAL_MONTHLY_CENTS" envDefault:"900"`
	Currency           string        `env:"BILLING_CURRENCY" envDefault:"eur"`
	TrialSweepInterval time.Duration `env:"BILLING_TRIAL_SWEEP_INTERVAL" envDefault:"15m"`
	NoticeDedupWindow  time.Duration `env:"BILLING_NOTIFICATION_DEDUP_TTL" envDefault:"720h"`
}

// LoadConfig parses Config from the process environment and the loaded .env values.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := cenv.ParseWithOptions(&cfg, cenv.Options{Environment: env.Snapshot()}); err != nil {
		return Config{}, fmt.Errorf("parse billing config: %w", err)
	}
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	return cfg, cfg.Validate()
}

// Validate checks value ranges. Missing provider credentials are not an error
// here; the operations that need them report ErrNotConfigured instead.
func (c Config) Validate() error {
	if c.TrialDays < 0 {
		return fmt.Errorf("BILLING_TRIAL_DAYS must not be negative")
	}
	if c.FreeSlots < 0 || c.PromotionalSlots < 0 {
		return fmt.Errorf("billing slot counts must not be negative")
	}
	if c.WebhookTolerance <= 0 {
		return fmt.Errorf("STRIPE_WEBHOOK_TOLERANCE must be positive")
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("BILLING_WEBHOOK_TIMEOUT must be positive")
	}
	if c.StandardMonthly < 0 || c.PromotionalMonthly < 0 {
		return fmt.Errorf("monthly prices must not be negative")
	}
	return nil
}

// TierPolicy derives the tier policy from the configured slot counts.
func (c Config) TierPolicy() TierPolicy {
	return TierPolicy{
		FreeSlots:        c.FreeSlots,
		PromotionalSlots: c.PromotionalSlots,
		TrialDays:        c.TrialDays,
	}
}

// PriceID returns the provider price for a paid tier.
func (c Config) PriceID(tier string) string {
	switch tier {
	case models.TierPromotional:
		return c.PromotionalPriceID
	case models.TierStandard:
		return c.StandardPriceID
	}
	return ""
}

// MonthlyPrice returns the monthly price in minor units.
func (c Config) MonthlyPrice(tier string) int64 {
	switch tier {
	case models.TierPromotional:
		return c.PromotionalMonthly
	case models.TierStandard:
		return c.StandardMonthly
	}
	return 0
}

// TierForPrice maps a provider price back to a tier. Unknown prices return "".
func (c Config) TierForPrice(priceID string) string {
	switch {
	case priceID == "":
		return ""
	case priceID == c.PromotionalPriceID:
		return models.TierPromotional
	case priceID == c.StandardPriceID:
		return models.TierStandard
	}
	return ""
}
