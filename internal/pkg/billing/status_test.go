package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

func TestTrialDaysRemaining(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}

	tests := []struct {
		name string
		sub  *models.Subscription
		want int
	}{
		{"nil", nil, 0},
		{"full days", &models.Subscription{Status: models.SubscriptionStatusTrialing, TrialEnd: at(72 * time.Hour)}, 3},
		{"partial day rounds up", &models.Subscription{Status: models.SubscriptionStatusTrialing, TrialEnd: at(time.Hour)}, 1},
		{"ended", &models.Subscription{Status: models.SubscriptionStatusTrialing, TrialEnd: at(-time.Hour)}, 0},
		{"not trialing", &models.Subscription{Status: models.SubscriptionStatusActive, TrialEnd: at(72 * time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrialDaysRemaining(tt.sub, now))
		})
	}
}

func TestNewStatusView_FreeTier(t *testing.T) {
	view := NewStatusView(&models.Subscription{Tier: models.TierFree, Status: models.SubscriptionStatusActive, RegistrationOrder: 1},
		Config{Currency: "eur", StandardMonthly: 1900}, time.Now())

	assert.True(t, view.HasAccess)
	assert.False(t, view.RequiresPaymentSetup)
	assert.Equal(t, int64(0), view.MonthlyPrice)
	assert.Equal(t, "eur", view.Currency)
}
