package billing

import (
	"math"
	"time"

	"github.com/ManuelReschke/InvoiceFox/app/models"
)

// StatusView is the billing status shown to an account.
type StatusView struct {
	Tier                   string     `json:"tier"`
	Status                 string     `json:"status"`
	RegistrationOrder      int64      `json:"registrationOrder"`
	HasAccess              bool       `json:"hasAccess"`
	TrialStart             *time.Time `json:"trialStart"`
	TrialEnd               *time.Time `json:"trialEnd"`
	DaysRemaining          int        `json:"daysRemaining"`
	MonthlyPrice           int64      `json:"monthlyPrice"`
	Currency               string     `json:"currency"`
	RequiresPaymentSetup   bool       `json:"requiresPaymentSetup"`
	HasPaymentMethod       bool       `json:"hasPaymentMethod"`
	ExternalCustomerID     string     `json:"externalCustomerId,omitempty"`
	ExternalSubscriptionID string     `json:"externalSubscriptionId,omitempty"`
	CurrentPeriodStart     *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd       *time.Time `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd      bool       `json:"cancelAtPeriodEnd"`
}

// NewStatusView derives the status view of sub at now.
func NewStatusView(sub *models.Subscription, cfg Config, now time.Time) StatusView {
	v := StatusView{
		Tier:                   sub.Tier,
		Status:                 sub.Status,
		RegistrationOrder:      sub.RegistrationOrder,
		HasAccess:              HasAccess(sub, now),
		TrialStart:             sub.TrialStart,
		TrialEnd:               sub.TrialEnd,
		DaysRemaining:          TrialDaysRemaining(sub, now),
		MonthlyPrice:           cfg.MonthlyPrice(sub.Tier),
		Currency:               cfg.Currency,
		HasPaymentMethod:       sub.HasPaymentMethod(),
		ExternalCustomerID:     sub.ExternalCustomerID,
		ExternalSubscriptionID: sub.ExternalSubscriptionID,
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
	}
	v.RequiresPaymentSetup = sub.Tier != models.TierFree && !v.HasPaymentMethod
	return v
}

// TrialDaysRemaining rounds the open trial window up to whole days.
// It is 0 outside of an active trial.
func TrialDaysRemaining(sub *models.Subscription, now time.Time) int {
	if sub == nil || sub.Status != models.SubscriptionStatusTrialing || sub.TrialEnd == nil {
		return 0
	}
	left := sub.TrialEnd.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
