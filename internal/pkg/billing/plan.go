package billing

import (
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

// TierPolicy assigns the initial tier from a registration order. It is kept
// apart from the counter so the cutoffs can change without touching storage.
type TierPolicy struct {
	FreeSlots        int64
	PromotionalSlots int64
	TrialDays        int
}

// TierFor returns the tier for the n-th registrant (1-based).
func (p TierPolicy) TierFor(order int64) string {
	switch {
	case order <= p.FreeSlots:
		return models.TierFree
	case order <= p.FreeSlots+p.PromotionalSlots:
		return models.TierPromotional
	default:
		return models.TierStandard
	}
}

// InitialSubscription builds the subscription row created at registration.
// Paid tiers start a trial window; free accounts are active without one.
func (p TierPolicy) InitialSubscription(accountID uint, order int64, now time.Time) *models.Subscription {
	sub := &models.Subscription{
		AccountID:         accountID,
		RegistrationOrder: order,
		Tier:              p.TierFor(order),
	}
	if sub.Tier == models.TierFree {
		sub.Status = models.SubscriptionStatusActive
		return sub
	}

	start := now.UTC()
	end := start.AddDate(0, 0, p.TrialDays)
	sub.Status = models.SubscriptionStatusTrialing
	sub.TrialStart = &start
	sub.TrialEnd = &end
	return sub
}

// mapProviderStatus folds provider lifecycle states into the local status set.
func mapProviderStatus(status string) string {
	switch status {
	case models.SubscriptionStatusActive,
		models.SubscriptionStatusTrialing,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusCanceled,
		models.SubscriptionStatusUnpaid,
		models.SubscriptionStatusIncomplete:
		return status
	case "incomplete_expired":
		return models.SubscriptionStatusCanceled
	case "paused":
		return models.SubscriptionStatusUnpaid
	default:
		return ""
	}
}
