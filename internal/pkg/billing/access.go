package billing

import (
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

// HasAccess reports whether a subscription currently grants feature access.
// It performs no I/O and is safe to call on every request.
func HasAccess(sub *models.Subscription, now time.Time) bool {
	if sub == nil {
		return false
	}
	if sub.Tier == models.TierFree {
		return true
	}
	switch sub.Status {
	case models.SubscriptionStatusActive:
		return true
	case models.SubscriptionStatusTrialing:
		return sub.TrialEnd != nil && now.Before(*sub.TrialEnd)
	default:
		return false
	}
}
