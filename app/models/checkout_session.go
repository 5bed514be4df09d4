package models

import "time"

// CheckoutSession records a hosted checkout issued for an account so that the
// completion event can be correlated back to the requesting subscription.
type CheckoutSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"session_id"`
	AccountID uint      `gorm:"not null;index" json:"account_id"`
	Tier      string    `gorm:"type:varchar(20);not null" json:"tier"`
	PriceID   string    `gorm:"type:varchar(191);not null" json:"price_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
