package models

import "time"

const (
	EventOutcomeApplied = "applied"
	EventOutcomeIgnored = "ignored"
	EventOutcomeFailed  = "failed"
)

// ProcessedEvent is a dedup ledger entry for a provider event. Rows are only
// ever inserted; the unique index on EventID is the reservation primitive.
type ProcessedEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	EventID     string    `gorm:"type:varchar(191);not null;uniqueIndex" json:"event_id"`
	EventType   string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Outcome     string    `gorm:"type:varchar(16);not null" json:"outcome"`
	ProcessedAt time.Time `gorm:"not null;index" json:"processed_at"`
}
