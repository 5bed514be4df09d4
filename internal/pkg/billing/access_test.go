package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

func TestHasAccess(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name string
		sub  *models.Subscription
		want bool
	}{
		{"nil subscription", nil, false},
		{"free tier regardless of status", &models.Subscription{Tier: models.TierFree, Status: models.SubscriptionStatusCanceled}, true},
		{"active", &models.Subscription{Tier: models.TierStandard, Status: models.SubscriptionStatusActive}, true},
		{"trial ends in one second", &models.Subscription{Tier: models.TierStandard, Status: models.SubscriptionStatusTrialing, TrialEnd: &future}, true},
		{"trial ended one second ago", &models.Subscription{Tier: models.TierStandard, Status: models.SubscriptionStatusTrialing, TrialEnd: &past}, false},
		{"trial ends exactly now", &models.Subscription{Tier: models.TierStandard, Status: models.SubscriptionStatusTrialing, TrialEnd: &now}, false},
		{"trialing without end", &models.Subscription{Tier: models.TierPromotional, Status: models.SubscriptionStatusTrialing}, false},
		{"incomplete", &models.Subscription{Tier: models.TierStandard, Status: models.SubscriptionStatusIncomplete}, false},
		{"past due", &models.Subscription{Tier: models.TierStandard, Status: models.SubscriptionStatusPastDue}, false},
		{"canceled", &models.Subscription{Tier: models.TierPromotional, Status: models.SubscriptionStatusCanceled}, false},
		{"unpaid", &models.Subscription{Tier: models.TierStandard, Status: models.SubscriptionStatusUnpaid}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasAccess(tt.sub, now))
		})
	}
}

func TestHasAccessIgnoresPaymentMethodDuringTrial(t *testing.T) {
	now := time.Now()
	end := now.Add(48 * time.Hour)
	sub := &models.Subscription{
		Tier:     models.TierStandard,
		Status:   models.SubscriptionStatusTrialing,
		TrialEnd: &end,
	}
	assert.False(t, sub.HasPaymentMethod())
	assert.True(t, HasAccess(sub, now))
}
