package models

import "time"

const (
	TierFree        = "free"
	TierPromotional = "promotional"
	TierStandard    = "standard"
)

const (
	SubscriptionStatusActive     = "active"
	SubscriptionStatusTrialing   = "trialing"
	SubscriptionStatusPastDue    = "past_due"
	SubscriptionStatusCanceled   = "canceled"
	SubscriptionStatusUnpaid     = "unpaid"
	SubscriptionStatusIncomplete = "incomplete"
)

// IsValidTier reports whether tier is one of the known plan classes.
func IsValidTier(tier string) bool {
	switch tier {
	case TierFree, TierPromotional, TierStandard:
		return true
	}
	return false
}

// Subscription is the single billing row per account. It is never hard-deleted;
// cancellation is a status transition. RegistrationOrder is written once at creation.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	AccountID              uint       `gorm:"not null;uniqueIndex" json:"account_id"`
	Tier                   string     `gorm:"type:varchar(20);not null;default:'standard'" json:"tier"`
	Status                 string     `gorm:"type:varchar(32);not null;index" json:"status"`
	RegistrationOrder      int64      `gorm:"not null;uniqueIndex" json:"registration_order"`
	TrialStart             *time.Time `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd               *time.Time `gorm:"type:timestamp;default:null;index" json:"trial_end,omitempty"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	ExternalCustomerID     string     `gorm:"type:varchar(191);default:'';index" json:"external_customer_id,omitempty"`
	ExternalSubscriptionID string     `gorm:"type:varchar(191);default:'';index" json:"external_subscription_id,omitempty"`
	ExternalPriceID        string     `gorm:"type:varchar(191);default:''" json:"external_price_id,omitempty"`
	LastEventAt            *time.Time `gorm:"type:timestamp;default:null" json:"-"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasPaymentMethod reports whether the provider knows both a customer and a subscription.
func (s *Subscription) HasPaymentMethod() bool {
	return s.ExternalCustomerID != "" && s.ExternalSubscriptionID != ""
}

// IsTrialActive reports whether a trial window is running at now.
func (s *Subscription) IsTrialActive(now time.Time) bool {
	return s.Status == SubscriptionStatusTrialing && s.TrialEnd != nil && now.Before(*s.TrialEnd)
}
